// Package logging decorates a store.Client with debug logging and
// OpenTelemetry spans.
package logging

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"pkt.systems/pslog"

	"github.com/creastat/sessionlock/store"
)

type client struct {
	inner  store.Client
	logger pslog.Logger
	tracer trace.Tracer
	driver string
}

// Wrap decorates inner with trace/debug logging. driver names the backend in
// log fields and span attributes.
func Wrap(inner store.Client, logger pslog.Logger, driver string) store.Client {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &client{
		inner:  inner,
		logger: logger.With("svc", "store", "driver", driver),
		tracer: otel.Tracer("github.com/creastat/sessionlock/store"),
		driver: driver,
	}
}

func (c *client) start(ctx context.Context, op string, key store.Key) (context.Context, trace.Span, pslog.Logger, func(string, error)) {
	begin := time.Now()
	ctx, span := c.tracer.Start(ctx, "sessionlock.store."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("sessionlock.store.operation", op),
		attribute.String("sessionlock.store.driver", c.driver),
		attribute.String("sessionlock.store.namespace", key.Namespace),
		attribute.String("sessionlock.store.set", key.Set),
	)
	logger := c.logger.With("key", key.String())

	return ctx, span, logger, func(result string, err error) {
		if err != nil && !expected(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "store_error")
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.AddEvent("sessionlock.store.end", trace.WithAttributes(
			attribute.String("sessionlock.store.result", result),
			attribute.Int64("sessionlock.store.duration_ms", time.Since(begin).Milliseconds()),
		))
	}
}

// expected reports errors that are protocol outcomes rather than failures.
func expected(err error) bool {
	return errors.Is(err, store.ErrGeneration) || errors.Is(err, store.ErrNotFound)
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, store.ErrGeneration):
		return "generation_mismatch"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (c *client) Get(ctx context.Context, key store.Key, binNames ...string) (*store.Record, error) {
	ctx, span, logger, finish := c.start(ctx, "get", key)
	defer span.End()
	begin := time.Now()

	rec, err := c.inner.Get(ctx, key, binNames...)
	if err != nil {
		finish("error", err)
		logger.Debug("store.get.error", "bins", binNames, "error", err, "elapsed", time.Since(begin))
		return nil, err
	}
	if rec == nil {
		finish("missing", nil)
		logger.Debug("store.get.missing", "bins", binNames, "elapsed", time.Since(begin))
		return nil, nil
	}
	span.SetAttributes(attribute.Int64("sessionlock.store.generation", int64(rec.Generation)))
	finish("ok", nil)
	logger.Debug("store.get.success", "bins", binNames, "generation", rec.Generation, "elapsed", time.Since(begin))
	return rec, nil
}

func (c *client) Put(ctx context.Context, key store.Key, policy store.WritePolicy, bins store.Bins) error {
	ctx, span, logger, finish := c.start(ctx, "put", key)
	defer span.End()
	begin := time.Now()
	span.SetAttributes(
		attribute.Bool("sessionlock.store.guarded", policy.ExpectGeneration),
		attribute.Int("sessionlock.store.ttl", policy.TTL),
	)

	err := c.inner.Put(ctx, key, policy, bins)
	finish(result(err), err)
	logger.Debug("store.put."+result(err),
		"guarded", policy.ExpectGeneration,
		"generation", policy.Generation,
		"update_only", policy.UpdateOnly,
		"replace", policy.Replace,
		"ttl", policy.TTL,
		"bins", len(bins),
		"error", err,
		"elapsed", time.Since(begin),
	)
	return err
}

func (c *client) Delete(ctx context.Context, key store.Key, policy store.WritePolicy) (bool, error) {
	ctx, span, logger, finish := c.start(ctx, "delete", key)
	defer span.End()
	begin := time.Now()

	existed, err := c.inner.Delete(ctx, key, policy)
	finish(result(err), err)
	logger.Debug("store.delete."+result(err),
		"guarded", policy.ExpectGeneration,
		"generation", policy.Generation,
		"existed", existed,
		"error", err,
		"elapsed", time.Since(begin),
	)
	return existed, err
}

func (c *client) Execute(ctx context.Context, key store.Key, module, function string, args ...any) (any, error) {
	ctx, span, logger, finish := c.start(ctx, "execute", key)
	defer span.End()
	begin := time.Now()
	span.SetAttributes(
		attribute.String("sessionlock.store.module", module),
		attribute.String("sessionlock.store.function", function),
	)

	res, err := c.inner.Execute(ctx, key, module, function, args...)
	finish(result(err), err)
	if err != nil {
		logger.Debug("store.execute.error", "module", module, "function", function, "error", err, "elapsed", time.Since(begin))
		return nil, err
	}
	logger.Debug("store.execute.success", "module", module, "function", function, "elapsed", time.Since(begin))
	return res, nil
}

func (c *client) HasModule(ctx context.Context, module store.Module) (bool, error) {
	found, err := c.inner.HasModule(ctx, module)
	if err != nil {
		c.logger.Warn("store.module.lookup.error", "module", module.Name, "error", err)
		return false, err
	}
	c.logger.Debug("store.module.lookup", "module", module.Name, "found", found)
	return found, nil
}

func (c *client) RegisterModule(ctx context.Context, module store.Module) error {
	if err := c.inner.RegisterModule(ctx, module); err != nil {
		c.logger.Warn("store.module.register.error", "module", module.Name, "error", err)
		return err
	}
	c.logger.Info("store.module.registered", "module", module.Name)
	return nil
}

func (c *client) Close() error {
	err := c.inner.Close()
	if err != nil {
		c.logger.Warn("store.close.error", "error", err)
	}
	return err
}
