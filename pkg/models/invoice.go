package models

import (
	"encoding/json"
	"time"
)

// Invoice is a vendor fuel invoice received from the email webhook.
// Field order matches schema: id, tenant_id, invoice_number, ...
type Invoice struct {
	ID            string  `json:"id" db:"id"`
	TenantID      string  `json:"tenant_id" db:"tenant_id"`
	InvoiceNumber *string `json:"invoice_number,omitempty" db:"invoice_number"`
	InvoiceDate   *string `json:"invoice_date,omitempty" db:"invoice_date"`
	DueDate       *string `json:"due_date,omitempty" db:"due_date"`
	VendorName    *string `json:"vendor_name,omitempty" db:"vendor_name"`
	CustomerName  *string `json:"customer_name,omitempty" db:"customer_name"`

	// Ship-to block as printed on the invoice
	ShipToName    *string `json:"ship_to_name,omitempty" db:"ship_to_name"`
	ShipToAddress *string `json:"ship_to_address,omitempty" db:"ship_to_address"`
	ShipToCity    *string `json:"ship_to_city,omitempty" db:"ship_to_city"`
	ShipToState   *string `json:"ship_to_state,omitempty" db:"ship_to_state"`
	ShipToZip     *string `json:"ship_to_zip,omitempty" db:"ship_to_zip"`

	// Fuel charges
	FuelType      *string  `json:"fuel_type,omitempty" db:"fuel_type"`
	TotalGallons  *float64 `json:"total_gallons,omitempty" db:"total_gallons"`
	DieselGallons *float64 `json:"diesel_gallons,omitempty" db:"diesel_gallons"`
	DefGallons    *float64 `json:"def_gallons,omitempty" db:"def_gallons"`
	RatePerGallon *float64 `json:"rate_per_gallon,omitempty" db:"rate_per_gallon"`
	Subtotal      *float64 `json:"subtotal,omitempty" db:"subtotal"`
	Tax           *float64 `json:"tax,omitempty" db:"tax"`
	DeliveryFee   *float64 `json:"delivery_fee,omitempty" db:"delivery_fee"`
	TotalAmount   *float64 `json:"total_amount,omitempty" db:"total_amount"`
	BalanceDue    *float64 `json:"balance_due,omitempty" db:"balance_due"`
	PaymentTerms  *string  `json:"payment_terms,omitempty" db:"payment_terms"`

	LineItems json.RawMessage `json:"line_items,omitempty" db:"line_items"`

	// Match outcome. JobID and confidence are both set or both null.
	MatchedJobID    *string          `json:"matched_job_id,omitempty" db:"matched_job_id"`
	MatchConfidence *MatchConfidence `json:"match_confidence,omitempty" db:"match_confidence"`
	MatchScore      *int             `json:"match_score,omitempty" db:"match_score"`
	MatchStatus     MatchStatus      `json:"match_status" db:"match_status"`

	// Source email metadata
	PDFFilename     *string    `json:"pdf_filename,omitempty" db:"pdf_filename"`
	EmailFrom       *string    `json:"email_from,omitempty" db:"email_from"`
	EmailSubject    *string    `json:"email_subject,omitempty" db:"email_subject"`
	EmailReceivedAt *time.Time `json:"email_received_at,omitempty" db:"email_received_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// InvoiceExtraction is the structured output of the document extraction API.
type InvoiceExtraction struct {
	InvoiceNumber *string  `json:"invoiceNumber,omitempty"`
	InvoiceDate   *string  `json:"invoiceDate,omitempty"`
	DueDate       *string  `json:"dueDate,omitempty"`
	VendorName    *string  `json:"vendorName,omitempty"`
	CustomerName  *string  `json:"customerName,omitempty"`
	ShipToName    *string  `json:"shipToName,omitempty"`
	ShipToAddress *string  `json:"shipToAddress,omitempty"`
	ShipToCity    *string  `json:"shipToCity,omitempty"`
	ShipToState   *string  `json:"shipToState,omitempty"`
	ShipToZip     *string  `json:"shipToZip,omitempty"`
	FuelType      *string  `json:"fuelType,omitempty"`
	TotalGallons  *float64 `json:"totalGallons,omitempty"`
	DieselGallons *float64 `json:"dieselGallons,omitempty"`
	DefGallons    *float64 `json:"defGallons,omitempty"`
	RatePerGallon *float64 `json:"ratePerGallon,omitempty"`
	Subtotal      *float64 `json:"subtotal,omitempty"`
	Tax           *float64 `json:"tax,omitempty"`
	DeliveryFee   *float64 `json:"deliveryFee,omitempty"`
	TotalAmount   *float64 `json:"totalAmount,omitempty"`
	BalanceDue    *float64 `json:"balanceDue,omitempty"`
	PaymentTerms  *string  `json:"paymentTerms,omitempty"`

	LineItems []InvoiceLineItem `json:"lineItems,omitempty"`
}

// InvoiceLineItem is a single charge line from the invoice.
type InvoiceLineItem struct {
	Description *string  `json:"description,omitempty"`
	Quantity    *float64 `json:"quantity,omitempty"`
	Rate        *float64 `json:"rate,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`
}

// ReceiveInvoiceRequest is the webhook payload from the email pipeline.
type ReceiveInvoiceRequest struct {
	PDFBase64       string     `json:"pdf_base64" validate:"required"`
	PDFFilename     *string    `json:"pdf_filename,omitempty"`
	EmailFrom       *string    `json:"email_from,omitempty"`
	EmailSubject    *string    `json:"email_subject,omitempty"`
	EmailReceivedAt *time.Time `json:"email_received_at,omitempty"`
}

// ReceiveInvoiceResponse reports what was stored and how the match landed.
type ReceiveInvoiceResponse struct {
	Invoice    Invoice          `json:"invoice"`
	JobID      *string          `json:"job_id,omitempty"`
	Confidence *MatchConfidence `json:"confidence,omitempty"`
	Score      int              `json:"score"`
}

// InvoiceListResponse is the response for listing invoices
type InvoiceListResponse struct {
	Items      []Invoice `json:"items"`
	TotalCount int       `json:"total_count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
}
