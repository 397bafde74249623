package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Customer Code", "customer_code"},
		{"Mã khách hàng", "ma_khach_hang"},
		{"Tên khách hàng", "ten_khach_hang"},
		{"Địa chỉ", "dia_chi"},
		{"ĐT di động NLH", "dt_di_dong_nlh"},
		{"Mã số thuế/CCCD chủ hộ", "ma_so_thuecccd_chu_ho"},
		{"Trường mở rộng 1", "truong_mo_rong_1"},
		{"  Công   nợ  ", "cong_no"},
		{"Email", "email"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Header(tt.in); got != tt.want {
			t.Errorf("Header(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHeaderIdempotent(t *testing.T) {
	inputs := []string{
		"Customer Code", "Mã khách hàng", "Tên khách hàng", "Địa chỉ",
		"Điện thoại", "Công nợ", "Là Đối tượng nội bộ", "STT",
		"customer_code", "ma_khach_hang",
	}
	for _, in := range inputs {
		once := Header(in)
		if twice := Header(once); twice != once {
			t.Errorf("Header not idempotent for %q: %q != %q", in, twice, once)
		}
	}
}

func TestCamelCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"customer_code", "customerCode"},
		{"ngay_giao_dich", "ngayGiaoDich"},
		{"column_1", "column1"},
		{"email", "email"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CamelCase(tt.in); got != tt.want {
			t.Errorf("CamelCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMapRelationAbsent(t *testing.T) {
	assert.Nil(t, MapRelation(nil))
	assert.Nil(t, MapRelation(false))
	assert.Nil(t, MapRelation(""))
	assert.Nil(t, MapRelation([]any{}))
}

func TestMapRelationPair(t *testing.T) {
	rel := MapRelation([]any{float64(5), "Acme"})
	if assert.NotNil(t, rel) {
		assert.Equal(t, int64(5), *rel.ID)
		assert.Equal(t, "Acme", *rel.Name)
	}
}

func TestMapRelationRecord(t *testing.T) {
	rel := MapRelation(map[string]any{"id": float64(5), "display_name": "Acme"})
	if assert.NotNil(t, rel) {
		assert.Equal(t, int64(5), *rel.ID)
		assert.Equal(t, "Acme", *rel.Name)
	}

	rel = MapRelation(map[string]any{"id": float64(7), "name": "Globex"})
	if assert.NotNil(t, rel) {
		assert.Equal(t, int64(7), *rel.ID)
		assert.Equal(t, "Globex", *rel.Name)
	}
}

func TestMapRelationScalar(t *testing.T) {
	rel := MapRelation("Acme")
	if assert.NotNil(t, rel) {
		assert.Nil(t, rel.ID)
		assert.Equal(t, "Acme", *rel.Name)
	}
}
