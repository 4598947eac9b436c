// Package client is the HTTP implementation of the scan session backend. It
// talks to the returns API over JSON, shipping inspection photos as multipart
// parts alongside the form fields.
package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"returnscan/scan/inspection"
	"returnscan/scan/session"
)

type errorPayload struct {
	Error  string
	Fields []fieldErrorPayload
}

type fieldErrorPayload struct {
	Field   string
	Message string
}

// Client implements session.Backend against the returns HTTP API.
type Client struct {
	http *resty.Client
}

// New builds a client for the API at baseURL. Submission retries are always
// user-initiated, so the client performs none of its own.
func New(baseURL string) *Client {
	hc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json")
	return &Client{http: hc}
}

func (c *Client) GetReturnProgress(ctx context.Context, orderID int64) (session.Snapshot, error) {
	var snap session.Snapshot
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&snap).
		SetPathParam("orderID", strconv.FormatInt(orderID, 10)).
		Get("/api/orders/{orderID}/return-progress")
	if err != nil {
		return session.Snapshot{}, &session.NetworkError{Err: err}
	}
	if resp.IsError() {
		return session.Snapshot{}, &session.NetworkError{Err: fmt.Errorf("server returned %s", resp.Status())}
	}
	return snap, nil
}

func (c *Client) SubmitInspection(ctx context.Context, orderID int64, req session.SubmitRequest) (session.SubmitResult, error) {
	var res session.SubmitResult
	var apiErr errorPayload
	r := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", req.IdempotencyKey).
		SetResult(&res).
		SetError(&apiErr).
		SetPathParam("orderID", strconv.FormatInt(orderID, 10)).
		SetMultipartFormData(map[string]string{
			"qrCode":             req.QRCode,
			"condition":          req.Condition,
			"notes":              req.Notes,
			"refurbDaysEstimate": strconv.FormatInt(req.RefurbDaysEstimate, 10),
			"discrepancyReason":  req.DiscrepancyReason,
			"quantity":           strconv.FormatInt(req.Quantity, 10),
		})
	for i, p := range req.Photos {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("photo-%d.jpg", i+1)
		}
		r.SetMultipartField("photos", name, p.MIME, bytes.NewReader(p.Blob))
	}

	resp, err := r.Post("/api/orders/{orderID}/inspections")
	if err != nil {
		return session.SubmitResult{}, &session.NetworkError{Err: err}
	}
	switch {
	case resp.IsSuccess():
		return res, nil
	case resp.StatusCode() == http.StatusUnprocessableEntity:
		rej := &session.RejectedError{Message: apiErr.Error}
		for _, f := range apiErr.Fields {
			rej.Fields = append(rej.Fields, inspection.FieldError{Field: f.Field, Message: f.Message})
		}
		return session.SubmitResult{}, rej
	default:
		return session.SubmitResult{}, &session.NetworkError{Err: fmt.Errorf("server returned %s", resp.Status())}
	}
}

func (c *Client) CompleteReturnScan(ctx context.Context, orderID int64) (string, error) {
	var out struct {
		NewStatus string
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetPathParam("orderID", strconv.FormatInt(orderID, 10)).
		Post("/api/orders/{orderID}/complete-return")
	if err != nil {
		return "", fmt.Errorf("complete return scan: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("complete return scan: server returned %s", resp.Status())
	}
	return out.NewStatus, nil
}
