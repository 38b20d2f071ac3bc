package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/grounded-archive/internal/core/domain"
	"github.com/kirillkom/grounded-archive/internal/infrastructure/resilience"
)

// Queue carries validated answer contracts to audit consumers on one subject.
type Queue struct {
	conn     *nats.Conn
	subject  string
	group    string
	executor *resilience.Executor
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	group := options.QueueGroup
	if group == "" {
		group = "auditors"
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("grounded-archive"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", fmt.Sprint(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		group:    group,
		executor: options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

const (
	headerMessageID       = "Nats-Msg-Id"
	headerPersona         = "Archive-Persona"
	headerContractVersion = "Archive-Contract-Version"
)

// contractSubject fans contracts out per persona under the base subject.
func contractSubject(base string, persona domain.PersonaKey) string {
	if persona == "" {
		persona = "unknown"
	}
	return base + "." + string(persona)
}

func contractMessage(base string, contract *domain.AnswerContract) (*nats.Msg, error) {
	data, err := json.Marshal(contract)
	if err != nil {
		return nil, fmt.Errorf("marshal contract: %w", err)
	}
	msg := nats.NewMsg(contractSubject(base, contract.Provenance.Persona))
	msg.Data = data
	msg.Header.Set(headerMessageID, contract.Provenance.MessageID)
	msg.Header.Set(headerPersona, string(contract.Provenance.Persona))
	msg.Header.Set(headerContractVersion, contract.Version)
	return msg, nil
}

func (q *Queue) PublishContract(ctx context.Context, contract *domain.AnswerContract) error {
	if contract == nil {
		return domain.WrapError(domain.ErrInvalidInput, "publish contract", errors.New("contract is nil"))
	}
	msg, err := contractMessage(q.subject, contract)
	if err != nil {
		return err
	}

	call := func(_ context.Context) error {
		if err := q.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats publish %s: %w", msg.Subject, err)
		}
		return nil
	}
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats_publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return mapPublishError(err)
}

// SubscribeContracts delivers every persona's contracts to handler until ctx ends. Workers share
// one queue group so each contract is handled once.
func (q *Queue) SubscribeContracts(ctx context.Context, handler func(context.Context, *domain.AnswerContract) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject+".>", q.group, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		contract, err := decodeMessage(msg)
		if err != nil {
			slog.Error("audit_decode_failed", "subject", msg.Subject, "error", err.Error(), "bytes", len(msg.Data))
			return
		}
		if err := handler(ctx, contract); err != nil {
			slog.Error("audit_handler_failed", "message_id", contract.Provenance.MessageID, "error", err.Error())
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// decodeMessage refuses contracts whose version header disagrees with the body.
func decodeMessage(msg *nats.Msg) (*domain.AnswerContract, error) {
	contract, err := decodeContract(msg.Data)
	if err != nil {
		return nil, err
	}
	if v := msg.Header.Get(headerContractVersion); v != "" && v != contract.Version {
		return nil, fmt.Errorf("decode contract: header version %q does not match body %q", v, contract.Version)
	}
	return contract, nil
}

func decodeContract(data []byte) (*domain.AnswerContract, error) {
	var contract domain.AnswerContract
	if err := json.Unmarshal(data, &contract); err != nil {
		return nil, fmt.Errorf("decode contract: %w", err)
	}
	if contract.Provenance.MessageID == "" {
		return nil, errors.New("decode contract: message_id is missing")
	}
	return &contract, nil
}
