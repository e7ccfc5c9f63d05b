package logger

import (
	"context"
	"log/slog"
	"sort"
)

// Fields 需要注入到上下文中的日志字段
type Fields map[string]interface{}

type fieldsKey struct{}

// InjectFields 将字段注入上下文，后续 *Context 日志调用会自动携带。
// 已存在的同名字段会被覆盖。
func InjectFields(ctx context.Context, fields Fields) context.Context {
	if len(fields) == 0 {
		return ctx
	}

	merged := make(Fields, len(fields))
	for k, v := range FieldsFrom(ctx) {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	return context.WithValue(ctx, fieldsKey{}, merged)
}

// FieldsFrom 读取上下文中已注入的字段
func FieldsFrom(ctx context.Context) Fields {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey{}).(Fields)
	return fields
}

// contextHandler 在记录日志时追加上下文字段
type contextHandler struct {
	slog.Handler
}

func (h *contextHandler) Handle(ctx context.Context, record slog.Record) error {
	fields := FieldsFrom(ctx)
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			record.AddAttrs(slog.Any(k, fields[k]))
		}
	}
	return h.Handler.Handle(ctx, record)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name)}
}
