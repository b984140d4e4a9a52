package models

import (
	"encoding/json"
	"time"
)

// Meta carries document bookkeeping.
type Meta struct {
	UpdatedAt time.Time `json:"updatedAt"`
	Revision  int64     `json:"revision"`
}

// Document is the single persisted promo state of a deployment.
type Document struct {
	Vouchers     map[string]*Voucher     `json:"vouchers"`
	MonthlyPromo MonthlyPromo            `json:"monthlyPromo"`
	Reservations map[string]*Reservation `json:"reservations"`
	Meta         Meta                    `json:"meta"`
}

// NewDocument returns a well-formed empty document.
func NewDocument() *Document {
	return &Document{
		Vouchers:     map[string]*Voucher{},
		MonthlyPromo: MonthlyPromo{Unlimited: []string{}},
		Reservations: map[string]*Reservation{},
	}
}

// DecodeDocument parses a persisted document. Empty input yields an empty
// document.
func DecodeDocument(data []byte) (*Document, error) {
	doc := NewDocument()
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, err
	}
	doc.normalize()
	return doc, nil
}

// Encode serializes the document for persistence.
func (doc *Document) Encode() ([]byte, error) {
	doc.normalize()
	return json.MarshalIndent(doc, "", "  ")
}

// Touch stamps the document before it is saved.
func (doc *Document) Touch(now time.Time) {
	doc.Meta.UpdatedAt = now.UTC()
	doc.Meta.Revision++
}

func (doc *Document) normalize() {
	if doc.Vouchers == nil {
		doc.Vouchers = map[string]*Voucher{}
	}
	if doc.Reservations == nil {
		doc.Reservations = map[string]*Reservation{}
	}
	if doc.MonthlyPromo.Unlimited == nil {
		doc.MonthlyPromo.Unlimited = []string{}
	}
}
