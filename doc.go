// Package storefront provides a composable catalog, pricing, and purchase
// orchestration engine for subscription storefronts.
//
// Storefront is designed as a library, not a service. Import it directly
// into your Go application. It provides:
//
//   - A temporally-versioned price history with a deterministic resolver
//   - Immutable, integer-arithmetic pricing snapshots frozen at purchase
//   - A rule engine validating customer metadata against per-product
//     JSON Schemas, with an opt-in legacy handler path
//   - A purchase orchestrator settling from a per-user credit ledger
//     under an exclusive lock, with idempotent retries
//   - Price-locked renewals with a past_due grace path
//   - An atomic multi-currency gate on product activation
//   - A hygiene monitor that turns catalog gaps into deduplicated admin
//     tasks instead of customer-facing errors
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/storefront"
//	    "github.com/xraph/storefront/store/postgres"
//	)
//
//	st, err := postgres.Open(databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	eng := storefront.New(st)
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Core Concepts
//
// Products own variants; variants own billing terms and a price history:
//
//	p := &catalog.Product{Name: "Streaming Plus", Slug: "streaming-plus", DefaultCurrency: "usd"}
//	eng.CreateProduct(ctx, p)
//	eng.SetPrice(ctx, variantID, "usd", 1999, time.Time{})
//	eng.ActivateProduct(ctx, p.ID)
//
// Purchases quote first, then commit atomically:
//
//	d, err := eng.CanPurchase(ctx, req)
//	if d.Allowed {
//	    result, err := eng.Purchase(ctx, req)
//	}
//
// All monetary calculations use integer arithmetic in minor units; the
// discount rounding is half-up and identical on every code path, so a
// displayed quote always equals the charged amount.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	prod_01h2xcejqtf2nbrexx3vqjhp41  // Product ID
//	ord_01h2xcejqtf2nbrexx3vqjhp41   // Order ID
//	sub_01h455vb4pex5vsknk084sn02q   // Subscription ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package storefront
