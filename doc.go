// Package verp is a multi-tenant HTTP routing and request-dispatch engine.
//
// Modules declare routes on controllers; a later module may override the
// route of an earlier one. Each tenant database gets its own routing table,
// compiled from the modules installed on it and cached until invalidated.
// Every request runs inside one transaction: it is committed when the
// handler succeeds, rolled back otherwise, and retried on serialization
// failures.
//
// # Quick Start
//
//	pools := db.NewPools(cfg.DB)
//	app, err := verp.New(
//	    verp.WithLogger(log),
//	    verp.WithModules(web.New(web.Config{}), shop.Module{}),
//	    verp.WithRegistry(verp.NewPGRegistry(pools)),
//	    verp.WithModuleSource(verp.NewPGRegistry(pools)),
//	    verp.WithDirectory(verp.NewPGDirectory(cfg.TokenSecret)),
//	    verp.WithDefaultTenant("acme"),
//	)
//	if err != nil {
//	    return err
//	}
//	return app.Run(":8069", verp.ShutdownHook(pools.Shutdown()))
//
// # Modules
//
// Modules implement [Module] to declare routes:
//
//	type Shop struct{}
//
//	func (Shop) Name() string { return "shop" }
//
//	func (s Shop) Routes(r verp.Registrar) {
//	    r.Route("shop.Main", "product", s.product,
//	        verp.Routes(`/shop/<model("product"):product>`),
//	        verp.Auth(verp.AuthPublic),
//	        verp.Website(true),
//	    )
//	}
//
//	func (Shop) product(c verp.Context) (any, error) {
//	    product := verp.Arg[verp.Records](c, "product")
//	    return verp.Render("shop.product", map[string]any{"product": product}), nil
//	}
//
// Overriding keeps the URL and merges the metadata:
//
//	r.Override("shop.Main", "product", nil, verp.Auth(verp.AuthUser))
//
// # Errors
//
// Handlers return classified errors; the engine renders them as pages for
// http routes and as JSON-RPC errors for json routes:
//
//	return nil, verp.ErrForbidden("You cannot see this product")
//
// # Topology changes
//
// Installing or removing a module must invalidate the routing tables.
// Other processes learn about it through NOTIFY on [RegistryChannel]:
//
//	verp invalidate acme
package verp
