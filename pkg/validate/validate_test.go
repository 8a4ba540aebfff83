package validate_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/shashiranjanraj/ventas/pkg/validate"
)

type line struct {
	ProductID string          `json:"product_id" validate:"required,alpha_dash,max=8"`
	Quantity  decimal.Decimal `json:"quantity"   validate:"required,gt=0,scale=3"`
}

type order struct {
	Method string          `json:"method" validate:"required,in=cash,card,transfer"`
	Note   string          `json:"note"   validate:"nullable,min=3"`
	Lines  []line          `json:"lines"  validate:"required,dive"`
	Total  decimal.Decimal `json:"total"  validate:"gte=0,lte=1000"`
	Count  int             `json:"count"  validate:"max=5"`
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func valid() order {
	return order{
		Method: "card",
		Lines:  []line{{ProductID: "P-1", Quantity: d("1.250")}},
		Total:  d("12.50"),
		Count:  1,
	}
}

func TestValidStructHasNoErrors(t *testing.T) {
	errs := validate.Struct(valid())
	assert.False(t, validate.HasErrors(errs), errs)
}

func TestRules(t *testing.T) {
	cases := []struct {
		name  string
		mut   func(*order)
		field string
	}{
		{"required", func(o *order) { o.Method = " " }, "method"},
		{"in list", func(o *order) { o.Method = "cheque" }, "method"},
		{"nullable min", func(o *order) { o.Note = "ab" }, "note"},
		{"empty slice", func(o *order) { o.Lines = nil }, "lines"},
		{"decimal lte", func(o *order) { o.Total = d("1000.01") }, "total"},
		{"decimal gte", func(o *order) { o.Total = d("-1") }, "total"},
		{"int max", func(o *order) { o.Count = 6 }, "count"},
		{"dive required", func(o *order) { o.Lines[0].ProductID = "" }, "lines.0.product_id"},
		{"dive alpha_dash", func(o *order) { o.Lines[0].ProductID = "P 1" }, "lines.0.product_id"},
		{"dive string max", func(o *order) { o.Lines[0].ProductID = "P-123456789" }, "lines.0.product_id"},
		{"dive gt", func(o *order) { o.Lines[0].Quantity = d("-1") }, "lines.0.quantity"},
		{"dive scale", func(o *order) { o.Lines[0].Quantity = d("0.0005") }, "lines.0.quantity"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := valid()
			o.Lines = append([]line(nil), o.Lines...)
			tc.mut(&o)
			errs := validate.Struct(&o)
			assert.Contains(t, errs, tc.field)
			assert.Len(t, errs, 1, errs)
		})
	}
}

func TestScaleIgnoresTrailingZeros(t *testing.T) {
	o := valid()
	o.Lines[0].Quantity = d("2.5000")
	assert.Empty(t, validate.Struct(o))
}

func TestUUID(t *testing.T) {
	type in struct {
		ID string `json:"id" validate:"uuid"`
	}
	assert.Empty(t, validate.Struct(in{ID: "6f1c2d3e-4a5b-4c6d-8e7f-9a0b1c2d3e4f"}))
	assert.Contains(t, validate.Struct(in{ID: "LOCAL-1"}), "id")
}
