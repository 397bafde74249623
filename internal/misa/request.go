package misa

import "encoding/json"

// Column describes one report column in the shape the export service
// expects. Field names on the wire are PascalCase.
type Column struct {
	Key        string `json:"Key"`
	Caption    string `json:"Caption"`
	FormatType int    `json:"FormatType"`
	Width      int    `json:"Width"`
	FooterText string `json:"FooterText,omitempty"`
}

// DataQuery is the data-source descriptor nested inside an ExportRequest.
// Sort and Filter are JSON documents serialized to strings because the
// server expects strings there, not arrays.
type DataQuery struct {
	Sort           string `json:"sort"`
	Filter         string `json:"filter"`
	PageIndex      int    `json:"pageIndex"`
	PageSize       int    `json:"pageSize"`
	UseSp          bool   `json:"useSp"`
	View           string `json:"view"`
	DataType       string `json:"dataType"`
	IsGetTotal     bool   `json:"isGetTotal"`
	IsFilterBranch bool   `json:"is_filter_branch"`
	CurrentBranch  string `json:"current_branch"`
	IsMultiBranch  bool   `json:"is_multi_branch"`
	IsDependent    bool   `json:"is_dependent"`
	LoadMode       int    `json:"loadMode"`
}

// ExportRequest describes one report to generate. Built once per invocation
// and never mutated.
type ExportRequest struct {
	Columns       []Column  `json:"Columns"`
	GetDataURL    string    `json:"GetDataUrl"`
	GetDataMethod string    `json:"GetDataMethod"`
	GetDataParam  DataQuery `json:"GetDataParam"`
	DataCount     int       `json:"DataCount"`
	FileType      string    `json:"FileType"`
	ReportTitle   string    `json:"ReportTitle"`
}

// BuildCustomerExportRequest assembles the customer-list report request:
// the fixed column set, the customer view query sorted by customer code and
// filtered to non-employee customers, scoped to the given branch.
func BuildCustomerExportRequest(baseURL, branchID, fileType string) ExportRequest {
	sort, _ := json.Marshal([]map[string]any{
		{"property": "account_object_code", "desc": false},
	})
	filter, _ := json.Marshal([]any{
		[]any{"is_customer", "=", true},
		"and",
		[]any{"is_employee", "=", false},
	})

	return ExportRequest{
		Columns: []Column{
			{Key: "account_object_code", Caption: "Mã khách hàng", FormatType: 12, Width: 180, FooterText: "Tổng"},
			{Key: "account_object_name", Caption: "Tên khách hàng", FormatType: 12, Width: 360},
			{Key: "address", Caption: "Địa chỉ", FormatType: 12, Width: 344},
			{Key: "closing_amount", Caption: "Công nợ", FormatType: 2, Width: 150},
			{Key: "company_tax_code", Caption: "Mã số thuế/CCCD chủ hộ", FormatType: 12, Width: 200},
			{Key: "tel", Caption: "Điện thoại", FormatType: 12, Width: 150},
			{Key: "contact_mobile", Caption: "ĐT di động NLH", FormatType: 12, Width: 150},
			{Key: "is_local_object", Caption: "Là Đối tượng nội bộ", FormatType: 13, Width: 200},
			{Key: "custom_field1", Caption: "Trường mở rộng 1", FormatType: 12, Width: 120},
			{Key: "email", Caption: "Email", FormatType: 12, Width: 220},
			{Key: "contact_name", Caption: "Contact Name", FormatType: 12, Width: 220},
		},
		GetDataURL:    baseURL + "/g2/api/db/v1/list/get_data",
		GetDataMethod: "POST",
		GetDataParam: DataQuery{
			Sort:           string(sort),
			Filter:         string(filter),
			PageIndex:      1,
			PageSize:       100,
			UseSp:          false,
			View:           "view_account_object_customer",
			DataType:       "di_customer",
			IsGetTotal:     true,
			IsFilterBranch: false,
			CurrentBranch:  branchID,
			IsMultiBranch:  false,
			IsDependent:    true,
			LoadMode:       1,
		},
		DataCount:   3,
		FileType:    fileType,
		ReportTitle: "Customer List",
	}
}
