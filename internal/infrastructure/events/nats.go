// Package events 发布运行终态事件
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"rag-gateway/internal/domain/services"
)

// DefaultSubjectPrefix 默认主题前缀，完整主题为 <prefix>.<state>
const DefaultSubjectPrefix = "rag.runs"

// NATSPublisher 将运行终态发布到 NATS
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	owned  bool
}

// Connect 连接 NATS 并创建发布器，Close 时关闭连接
func Connect(url, subjectPrefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("rag-gateway"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	p := NewNATSPublisher(nc, subjectPrefix)
	p.owned = true
	return p, nil
}

// NewNATSPublisher 使用已有连接创建发布器，连接由调用方管理
func NewNATSPublisher(nc *nats.Conn, subjectPrefix string) *NATSPublisher {
	if subjectPrefix == "" {
		subjectPrefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{
		conn:   nc,
		prefix: strings.TrimSuffix(subjectPrefix, "."),
	}
}

// Subject 返回某个终态对应的主题
func (p *NATSPublisher) Subject(n services.RunNotification) string {
	return p.prefix + "." + strings.ToLower(string(n.State))
}

// Publish 发布一条运行通知
func (p *NATSPublisher) Publish(ctx context.Context, n services.RunNotification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal run notification: %w", err)
	}

	if err := p.conn.Publish(p.Subject(n), data); err != nil {
		return fmt.Errorf("publish run notification: %w", err)
	}
	return nil
}

// Close 刷新缓冲并在持有连接时关闭
func (p *NATSPublisher) Close() error {
	if !p.owned {
		return nil
	}
	defer p.conn.Close()
	if err := p.conn.Flush(); err != nil {
		return fmt.Errorf("flush nats connection: %w", err)
	}
	return nil
}
