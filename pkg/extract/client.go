// Package extract calls the document extraction API to turn invoice PDFs
// into structured fields.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/fleetconnect/matchbook/config"
	"github.com/fleetconnect/matchbook/pkg/httpclient"
	"github.com/fleetconnect/matchbook/pkg/models"
	"github.com/fleetconnect/matchbook/pkg/tracing"
)

const apiVersion = "2023-06-01"

const systemPrompt = `You are an invoice data extractor for a fuel delivery business. ` +
	`Extract fields from the invoice PDF and return ONLY a JSON object with these keys ` +
	`(omit any key not present on the invoice, never output null): ` +
	`invoiceNumber, invoiceDate (YYYY-MM-DD), dueDate, vendorName, customerName, ` +
	`shipToName, shipToAddress, shipToCity, shipToState, shipToZip, ` +
	`fuelType, totalGallons, dieselGallons, defGallons, ratePerGallon, ` +
	`subtotal, tax, deliveryFee, totalAmount, balanceDue, paymentTerms, ` +
	`lineItems (array of {description, quantity, rate, amount}). ` +
	`All monetary and gallon values are numbers, not strings.`

// InvoiceExtractor extracts structured invoice fields from a PDF.
type InvoiceExtractor interface {
	ExtractInvoice(ctx context.Context, pdfBase64 string, filename string) (*models.InvoiceExtraction, error)
}

// Client calls the messages API with the PDF attached as a document block.
type Client struct {
	http      *httpclient.Client
	logger    ectologger.Logger
	url       string
	apiKey    string
	model     string
	maxTokens int
}

// NewClient creates an extraction client from app config
func NewClient(cfg config.Config, logger ectologger.Logger) *Client {
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.ExtractionTimeout

	return &Client{
		http:      httpclient.NewClient(httpCfg, logger),
		logger:    logger,
		url:       cfg.ExtractionAPIURL,
		apiKey:    cfg.ExtractionAPIKey,
		model:     cfg.ExtractionModel,
		maxTokens: cfg.ExtractionMaxTokens,
	}
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type   string         `json:"type"`
	Text   string         `json:"text,omitempty"`
	Source *documentBlock `json:"source,omitempty"`
}

type documentBlock struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// ExtractInvoice sends the PDF to the extraction API and parses the
// structured fields out of the response.
func (c *Client) ExtractInvoice(ctx context.Context, pdfBase64 string, filename string) (*models.InvoiceExtraction, error) {
	ctx, span := tracing.StartSpan(ctx, "extract.Client.ExtractInvoice")
	defer span.End()

	reqBody := messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    systemPrompt,
		Messages: []message{
			{
				Role: "user",
				Content: []contentBlock{
					{
						Type: "document",
						Source: &documentBlock{
							Type:      "base64",
							MediaType: "application/pdf",
							Data:      pdfBase64,
						},
					},
					{
						Type: "text",
						Text: "Extract the invoice fields from this PDF.",
					},
				},
			},
		},
	}

	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": apiVersion,
	}

	resp, err := c.http.PostJSON(ctx, c.url, reqBody, headers)
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}

	if !resp.IsSuccess() {
		c.logger.WithContext(ctx).WithFields(map[string]any{
			"status_code":  resp.StatusCode,
			"pdf_filename": filename,
		}).Error("Extraction API returned an error")
		return nil, fmt.Errorf("extraction API status %d: %s", resp.StatusCode, string(resp.Body))
	}

	var msgResp messagesResponse
	if err := json.Unmarshal(resp.Body, &msgResp); err != nil {
		return nil, fmt.Errorf("failed to decode extraction response: %w", err)
	}

	text := ""
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("extraction response contained no text content")
	}

	extraction, err := parseExtraction(text)
	if err != nil {
		return nil, err
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"pdf_filename":   filename,
		"invoice_number": deref(extraction.InvoiceNumber),
		"vendor_name":    deref(extraction.VendorName),
	}).Info("Extracted invoice fields")

	return extraction, nil
}

// parseExtraction unmarshals the model output, tolerating markdown code
// fences around the JSON.
func parseExtraction(text string) (*models.InvoiceExtraction, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var extraction models.InvoiceExtraction
	if err := json.Unmarshal([]byte(cleaned), &extraction); err != nil {
		return nil, fmt.Errorf("failed to parse extraction output: %w", err)
	}
	return &extraction, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
