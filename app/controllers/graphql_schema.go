package controllers

import (
	"encoding/json"
	"errors"

	"github.com/graphql-go/graphql"

	"github.com/shashiranjanraj/ventas/app/repositories"
	"github.com/shashiranjanraj/ventas/app/services"
	gql "github.com/shashiranjanraj/ventas/pkg/graphql"
)

// ─── Read-only GraphQL ────────────────────────────────────────────────────────
//
// Objects resolve from the JSON form of the models, so field names are the
// REST names and decimals are strings.

func fields(names ...string) graphql.Fields {
	f := graphql.Fields{}
	for _, n := range names {
		f[n] = &graphql.Field{Type: graphql.String}
	}
	return f
}

var (
	productType = graphql.NewObject(graphql.ObjectConfig{
		Name:   "Product",
		Fields: fields("id", "name", "unit_price", "sale_type", "quantity", "min_stock", "updated_at"),
	})

	saleLineType = graphql.NewObject(graphql.ObjectConfig{
		Name:   "SaleLine",
		Fields: fields("product_id", "sale_type", "quantity", "unit_price", "list_price", "subtotal"),
	})

	movementType = graphql.NewObject(graphql.ObjectConfig{
		Name: "StockMovement",
		Fields: func() graphql.Fields {
			f := fields("product_id", "kind", "sale_type", "delta", "previous", "resulting",
				"reference_id", "note", "operator_id", "created_at")
			f["id"] = &graphql.Field{Type: graphql.Int}
			return f
		}(),
	})

	saleType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Sale",
		Fields: func() graphql.Fields {
			f := fields("code", "operator_id", "customer_label", "payment_method", "subtotal",
				"tax_rate", "tax", "total", "status", "drafted_at", "created_at", "cancelled_at", "cancel_reason")
			f["lines"] = &graphql.Field{Type: graphql.NewList(saleLineType)}
			return f
		}(),
	})

	ledgerCheckType = graphql.NewObject(graphql.ObjectConfig{
		Name:   "LedgerMismatch",
		Fields: fields("product_id", "on_hand", "moved"),
	})
)

// plain converts v to maps and slices through its JSON encoding.
func plain(v any, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(raw, &out)
	return out, err
}

// notFoundAsNull turns lookups of missing records into null.
func notFoundAsNull(v any, err error) (any, error) {
	if errors.Is(err, repositories.ErrProductNotFound) || errors.Is(err, services.ErrSaleNotFound) {
		return nil, nil
	}
	return plain(v, err)
}

// NewGraphQLSchema exposes products, sales and the stock ledger read-only.
func NewGraphQLSchema(products *repositories.ProductRepository, reports *repositories.ReportRepository, sales *services.SaleService) (graphql.Schema, error) {
	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"product": &graphql.Field{
				Type: productType,
				Args: graphql.FieldConfigArgument{"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)}},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return notFoundAsNull(products.Find(p.Context, p.Args["id"].(string)))
				},
			},
			"products": &graphql.Field{
				Type: graphql.NewList(productType),
				Args: graphql.FieldConfigArgument{
					"search":    &graphql.ArgumentConfig{Type: graphql.String},
					"low_stock": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
					"page":      &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 1},
					"per_page":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					search, _ := p.Args["search"].(string)
					items, _, err := products.List(p.Context, repositories.ProductFilter{
						Search:   search,
						LowStock: p.Args["low_stock"].(bool),
						Page:     p.Args["page"].(int),
						PerPage:  p.Args["per_page"].(int),
					})
					return plain(items, err)
				},
			},
			"product_movements": &graphql.Field{
				Type: graphql.NewList(movementType),
				Args: graphql.FieldConfigArgument{
					"id":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return plain(reports.ProductMovements(p.Context, p.Args["id"].(string), p.Args["limit"].(int)))
				},
			},
			"sale": &graphql.Field{
				Type: saleType,
				Args: graphql.FieldConfigArgument{"code": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)}},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return notFoundAsNull(sales.FindSale(p.Context, p.Args["code"].(string)))
				},
			},
			"sale_movements": &graphql.Field{
				Type: graphql.NewList(movementType),
				Args: graphql.FieldConfigArgument{"code": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)}},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return plain(reports.SaleMovements(p.Context, p.Args["code"].(string)))
				},
			},
			"ledger_mismatches": &graphql.Field{
				Type: graphql.NewList(ledgerCheckType),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return plain(reports.LedgerChecks(p.Context))
				},
			},
		},
	})
	return gql.NewSchema(query)
}
