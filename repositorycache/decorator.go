package repositorycache

import (
	"context"
	"fmt"
	"reflect"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-memoize/cache"
	"github.com/goliatone/go-memoize/memoize"
)

// Interface assertion to ensure CachedRepository implements Repository[T]
var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// listResult wraps the tuple result from List operations for caching
type listResult[T any] struct {
	Records []T
	Total   int
}

// Config controls the memoized read methods. Each method gets its own cache of MaxSize
// entries.
type Config struct {
	// Name prefixes the cache names; it defaults to the model's snake_case type name.
	Name         string
	MaxSize      int
	MaxAge       time.Duration
	UpdateExpire bool
	Scheduler    cache.Scheduler
	Logger       zerolog.Logger

	// Serializer, when set, keys every read by the string it returns for the leading
	// args and criteria instead of comparing criteria by closure instance.
	Serializer cache.KeySerializer
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		MaxSize: 1000,
		MaxAge:  5 * time.Minute,
		Logger:  zerolog.Nop(),
	}
}

func (c Config) engine() cache.Config {
	return cache.Config{
		MaxSize:      c.MaxSize,
		MaxAge:       c.MaxAge,
		UpdateExpire: c.UpdateExpire,
		Scheduler:    c.Scheduler,
		Logger:       c.Logger,
		Serializer:   c.Serializer,
	}
}

// CachedRepository decorates a base repository with memoized reads. Concurrent identical
// reads share one query, failed reads are never cached, and writes made through the
// decorator forget the results they may have changed. Transactional reads and raw
// queries go straight to the base repository.
//
// Criteria are part of the key and compare by closure instance. Criteria built on every
// call, such as func(n int) SelectCriteria factories, therefore always miss; keep the
// criteria values and reuse them to share results, or set Config.Serializer to one that
// knows how to key them.
type CachedRepository[T any] struct {
	repository.Repository[T]

	get             *memoize.DeferredFunc[T]
	getByID         *memoize.DeferredFunc[T]
	getByIdentifier *memoize.DeferredFunc[T]
	list            *memoize.DeferredFunc[listResult[T]]
	count           *memoize.DeferredFunc[int]

	name string
	log  zerolog.Logger
}

// New creates a new CachedRepository that wraps the base repository with caching
func New[T any](base repository.Repository[T], cfg Config, opts ...memoize.Option) (*CachedRepository[T], error) {
	if base == nil {
		return nil, &cache.ConfigError{Field: "base", Message: "base repository is required"}
	}
	if cfg.Name == "" {
		cfg.Name = modelName[T]()
	}

	c := &CachedRepository[T]{
		Repository: base,
		name:       cfg.Name,
		log:        cfg.Logger.With().Str("repository", cfg.Name).Logger(),
	}
	named := func(method string) []memoize.Option {
		return append([]memoize.Option{memoize.WithName(cfg.Name + "." + toSnake(method))}, opts...)
	}

	var err error
	if c.get, err = memoize.NewDeferred(func(ctx context.Context, args ...any) (T, error) {
		return base.Get(ctx, selectCriteria(args)...)
	}, cfg.engine(), named("Get")...); err != nil {
		return nil, err
	}
	if c.getByID, err = memoize.NewDeferred(func(ctx context.Context, args ...any) (T, error) {
		return base.GetByID(ctx, args[0].(string), selectCriteria(args[1:])...)
	}, cfg.engine(), named("GetByID")...); err != nil {
		return nil, err
	}
	if c.getByIdentifier, err = memoize.NewDeferred(func(ctx context.Context, args ...any) (T, error) {
		return base.GetByIdentifier(ctx, args[0].(string), selectCriteria(args[1:])...)
	}, cfg.engine(), named("GetByIdentifier")...); err != nil {
		return nil, err
	}
	if c.list, err = memoize.NewDeferred(func(ctx context.Context, args ...any) (listResult[T], error) {
		records, total, err := base.List(ctx, selectCriteria(args)...)
		return listResult[T]{Records: records, Total: total}, err
	}, cfg.engine(), named("List")...); err != nil {
		return nil, err
	}
	if c.count, err = memoize.NewDeferred(func(ctx context.Context, args ...any) (int, error) {
		return base.Count(ctx, selectCriteria(args)...)
	}, cfg.engine(), named("Count")...); err != nil {
		return nil, err
	}
	return c, nil
}

func criteriaArgs(criteria []repository.SelectCriteria, lead ...any) []any {
	args := make([]any, 0, len(lead)+len(criteria))
	args = append(args, lead...)
	for _, c := range criteria {
		args = append(args, c)
	}
	return args
}

func selectCriteria(args []any) []repository.SelectCriteria {
	if len(args) == 0 {
		return nil
	}
	out := make([]repository.SelectCriteria, 0, len(args))
	for _, arg := range args {
		if c, ok := arg.(repository.SelectCriteria); ok {
			out = append(out, c)
		}
	}
	return out
}

// Get retrieves a single record using the provided criteria, with caching
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	if bypassed(ctx) {
		return c.Repository.Get(ctx, criteria...)
	}
	return c.get.Call(ctx, criteriaArgs(criteria)...)
}

// GetByID retrieves a record by ID with optional criteria, with caching
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	if bypassed(ctx) {
		return c.Repository.GetByID(ctx, id, criteria...)
	}
	return c.getByID.Call(ctx, criteriaArgs(criteria, id)...)
}

// GetByIdentifier retrieves a record by identifier with optional criteria, with caching
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	if bypassed(ctx) {
		return c.Repository.GetByIdentifier(ctx, identifier, criteria...)
	}
	return c.getByIdentifier.Call(ctx, criteriaArgs(criteria, identifier)...)
}

// List retrieves multiple records using the provided criteria, with caching
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	if bypassed(ctx) {
		return c.Repository.List(ctx, criteria...)
	}
	res, err := c.list.Call(ctx, criteriaArgs(criteria)...)
	if err != nil {
		return nil, 0, err
	}
	return res.Records, res.Total, nil
}

// Count returns the number of records matching the criteria, with caching
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	if bypassed(ctx) {
		return c.Repository.Count(ctx, criteria...)
	}
	return c.count.Call(ctx, criteriaArgs(criteria)...)
}

// Create creates a new record and forgets cached lists and counts.
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.Repository.Create(ctx, record, criteria...)
	if err == nil {
		c.invalidateAfterCreate()
	}
	return result, err
}

// CreateTx creates a new record within a transaction
func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.Repository.CreateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateAfterCreate()
	}
	return result, err
}

// CreateMany creates multiple records
func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.Repository.CreateMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateAfterCreate()
	}
	return result, err
}

// CreateManyTx creates multiple records within a transaction
func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.Repository.CreateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateAfterCreate()
	}
	return result, err
}

// GetOrCreate gets a record or creates it if it doesn't exist
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := c.Repository.GetOrCreate(ctx, record)
	if err == nil {
		c.invalidateAfterCreate()
	}
	return result, err
}

// GetOrCreateTx gets a record or creates it if it doesn't exist within a transaction
func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := c.Repository.GetOrCreateTx(ctx, tx, record)
	if err == nil {
		c.invalidateAfterCreate()
	}
	return result, err
}

// Update updates a record and forgets every cached read it may affect.
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.Repository.Update(ctx, record, criteria...)
	if err == nil {
		c.invalidateRecords(result)
	}
	return result, err
}

// UpdateTx updates a record within a transaction
func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.Repository.UpdateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateRecords(result)
	}
	return result, err
}

// UpdateMany updates multiple records
func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.Repository.UpdateMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateRecords(result...)
	}
	return result, err
}

// UpdateManyTx updates multiple records within a transaction
func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.Repository.UpdateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateRecords(result...)
	}
	return result, err
}

// Upsert inserts or updates a record
func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.Repository.Upsert(ctx, record, criteria...)
	if err == nil {
		c.invalidateRecords(result)
	}
	return result, err
}

// UpsertTx inserts or updates a record within a transaction
func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.Repository.UpsertTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateRecords(result)
	}
	return result, err
}

// UpsertMany inserts or updates multiple records
func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.Repository.UpsertMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateRecords(result...)
	}
	return result, err
}

// UpsertManyTx inserts or updates multiple records within a transaction
func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.Repository.UpsertManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateRecords(result...)
	}
	return result, err
}

// Delete deletes a record
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	err := c.Repository.Delete(ctx, record)
	if err == nil {
		c.invalidateRecords(record)
	}
	return err
}

// DeleteTx deletes a record within a transaction
func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.Repository.DeleteTx(ctx, tx, record)
	if err == nil {
		c.invalidateRecords(record)
	}
	return err
}

// DeleteMany deletes multiple records based on criteria
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.Repository.DeleteMany(ctx, criteria...)
	if err == nil {
		c.Invalidate()
	}
	return err
}

// DeleteManyTx deletes multiple records based on criteria within a transaction
func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.Repository.DeleteManyTx(ctx, tx, criteria...)
	if err == nil {
		c.Invalidate()
	}
	return err
}

// DeleteWhere deletes records based on criteria
func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.Repository.DeleteWhere(ctx, criteria...)
	if err == nil {
		c.Invalidate()
	}
	return err
}

// DeleteWhereTx deletes records based on criteria within a transaction
func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.Repository.DeleteWhereTx(ctx, tx, criteria...)
	if err == nil {
		c.Invalidate()
	}
	return err
}

// ForceDelete force deletes a record (bypassing soft delete)
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	err := c.Repository.ForceDelete(ctx, record)
	if err == nil {
		c.invalidateRecords(record)
	}
	return err
}

// ForceDeleteTx force deletes a record within a transaction (bypassing soft delete)
func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.Repository.ForceDeleteTx(ctx, tx, record)
	if err == nil {
		c.invalidateRecords(record)
	}
	return err
}

// Name returns the prefix of the memoized method names.
func (c *CachedRepository[T]) Name() string { return c.name }

// Invalidate forgets every cached read.
func (c *CachedRepository[T]) Invalidate() {
	c.get.Clear()
	c.getByID.Clear()
	c.getByIdentifier.Clear()
	c.list.Clear()
	c.count.Clear()
	c.log.Debug().Str("event", "invalidate_all").Msg("cached reads cleared")
}

// Stats returns the counters of every memoized read method, keyed by method name.
func (c *CachedRepository[T]) Stats() map[string]memoize.StatsSnapshot {
	return map[string]memoize.StatsSnapshot{
		"Get":             c.get.Stats(),
		"GetByID":         c.getByID.Stats(),
		"GetByIdentifier": c.getByIdentifier.Stats(),
		"List":            c.list.Stats(),
		"Count":           c.count.Stats(),
	}
}

// invalidateAfterCreate forgets lists and counts; single record reads of the new record
// cannot have been cached because failed reads never are.
func (c *CachedRepository[T]) invalidateAfterCreate() {
	c.list.Clear()
	c.count.Clear()
	c.log.Debug().Str("event", "invalidate_create").Msg("cached lists and counts cleared")
}

// invalidateRecords forgets the by-id and by-identifier reads of records, falling back
// to clearing those caches when a record exposes neither, and clears every query read.
func (c *CachedRepository[T]) invalidateRecords(records ...T) {
	for _, record := range records {
		if id, ok := extractField(record, "ID", "Id"); ok {
			forgetLeading(c.getByID, id)
		} else {
			c.getByID.Clear()
		}
		if identifier, ok := extractField(record, "Identifier", "Name", "Code", "Slug"); ok {
			forgetLeading(c.getByIdentifier, identifier)
		} else {
			c.getByIdentifier.Clear()
		}
	}
	c.get.Clear()
	c.list.Clear()
	c.count.Clear()
	c.log.Debug().Str("event", "invalidate_records").Int("records", len(records)).Msg("cached reads cleared")
}

// forgetLeading removes every cached call of f whose first argument is lead.
func forgetLeading[R any](f *memoize.DeferredFunc[R], lead string) {
	for _, args := range f.Keys() {
		if len(args) > 0 && args[0] == lead {
			f.Remove(args...)
		}
	}
}

// extractField returns the first named field of record, formatted as a string.
func extractField[T any](record T, names ...string) (string, bool) {
	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return "", false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return "", false
	}

	for _, name := range names {
		field := v.FieldByName(name)
		if field.IsValid() && field.CanInterface() {
			return fmt.Sprintf("%v", field.Interface()), true
		}
	}
	return "", false
}
