// Package repositorycache memoizes the read methods of a go-repository-bun repository.
//
// # Overview
//
// CachedRepository embeds the base repository and overrides Get, GetByID,
// GetByIdentifier, List and Count with memoized versions. Each method has its own
// deferred cache, so concurrent identical reads share one query and failed reads are
// never stored. Everything not overridden, including transactional reads and Raw,
// passes straight through.
//
// # Basic Usage
//
//	base := repository.NewRepository[*User](db, handlers)
//
//	cached, err := repositorycache.New[*User](base, repositorycache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//
//	user, err := cached.GetByID(ctx, "user-123")
//	users, total, err := cached.List(ctx, activeOnly)
//
// # Invalidation
//
// Writes made through the decorator forget what they may have changed:
//
//   - Create, CreateMany and GetOrCreate clear cached lists and counts
//   - Update, Upsert, Delete and ForceDelete forget the by-id and by-identifier reads of
//     the affected records (matched on their ID and Identifier/Name/Code/Slug fields)
//     and clear every query read
//   - DeleteMany and DeleteWhere clear everything
//
// Writes that bypass the decorator are only picked up when entries expire; set MaxAge
// accordingly or call Invalidate.
//
// # Bypassing the Cache
//
// A context produced by WithoutCache sends reads to the base repository without
// consulting or filling the cache:
//
//	fresh, err := cached.GetByID(repositorycache.WithoutCache(ctx), id)
//
// # Keys
//
// Criteria are part of the key and compare by function identity: reuse a criteria
// value to share its cached result. Criteria built inline on each call produce a new
// closure every time and therefore always miss, unless Config.Serializer keys them
// by content.
package repositorycache
