// Package eventloop implements the Event Ingestion Loop (component F): a single
// long-lived task that authenticates against the master, streams events, and dispatches
// each one to the Minion Materializer, with exponential backoff on auth failure.
package eventloop

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fleetward/fleetward/internal/master"
	"github.com/fleetward/fleetward/internal/minion"
	"github.com/fleetward/fleetward/internal/models"
	"github.com/fleetward/fleetward/internal/sse"
)

// State is the loop's connection state machine position.
type State int

const (
	Disconnected State = iota
	Authenticating
	Streaming
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
	streamEndSleep = 1 * time.Second
)

// serviceAccountUsername must match internal/token's reserved identity.
const serviceAccountUsername = "$superadmin/svc/fleetward$"

var jobReturnTag = regexp.MustCompile(`^salt/job/([^/]+)/ret/([^/]+)$`)

// eventPayload is the {data: {...}} envelope every event carries; fun/result/retcode/arg
// are read ad hoc per tag since their presence depends on the tag.
type eventPayload struct {
	Data json.RawMessage `json:"data"`
}

type innerData struct {
	Fun     string            `json:"fun"`
	Result  interface{}       `json:"result"`
	RetCode *int              `json:"retcode"`
	Arg     []interface{}     `json:"arg"`
	Return  map[string]interface{} `json:"return"`
}

// Loop is the Event Ingestion Loop.
type Loop struct {
	masterCli    master.Client
	serviceToken string
	materializer *minion.Materializer
	broadcaster  *sse.Broadcaster
	log          *zap.Logger

	state     State
	connected bool
}

func New(masterCli master.Client, serviceToken string, materializer *minion.Materializer, broadcaster *sse.Broadcaster, log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{masterCli: masterCli, serviceToken: serviceToken, materializer: materializer, broadcaster: broadcaster, log: log}
}

// Connected reports the loop's liveness flag.
func (l *Loop) Connected() bool { return l.connected }

// Run blocks forever, cycling Disconnected → Authenticating → Streaming and back until ctx
// is cancelled.
func (l *Loop) Run(ctx context.Context) {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		l.state = Authenticating
		tok, err := l.masterCli.Login(ctx, serviceAccountUsername, l.serviceToken)
		if err != nil {
			l.log.Warn("event loop authentication failed", zap.Error(err), zap.Duration("backoff", backoff))
			l.enterDisconnected()
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = initialBackoff

		l.state = Streaming
		l.connected = true
		l.stream(ctx, tok)
		l.enterDisconnected()

		if !sleepCtx(ctx, streamEndSleep) {
			return
		}
	}
}

func (l *Loop) enterDisconnected() {
	l.state = Disconnected
	l.connected = false
}

func (l *Loop) stream(ctx context.Context, tok *models.MasterToken) {
	events, err := l.masterCli.ListenEvents(ctx, tok)
	if err != nil {
		l.log.Warn("failed to open event stream", zap.Error(err))
		return
	}
	defer events.Close()

	for {
		ev, err := events.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				l.log.Warn("event stream read failed", zap.Error(err))
			}
			return
		}
		if err := l.dispatch(ctx, ev); err != nil {
			l.log.Warn("failed to apply event", zap.String("tag", ev.Tag), zap.Error(err))
		}
	}
}

// dispatch classifies one event by tag and applies its side effect (§4.6).
func (l *Loop) dispatch(ctx context.Context, ev master.StreamEvent) error {
	var payload eventPayload
	if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
		return nil // malformed payload is ignored, not fatal to the loop
	}
	var inner innerData
	if len(payload.Data) > 0 {
		if err := json.Unmarshal(payload.Data, &inner); err != nil {
			return nil
		}
	}

	now := time.Now().UTC()

	if ev.Tag == "salt/auth" {
		if result, ok := inner.Result.(bool); ok && result {
			minionID, _ := jsonField(payload.Data, "id")
			if minionID == "" {
				return nil
			}
			if err := l.materializer.Touch(ctx, minionID, now); err != nil {
				return err
			}
			l.notify(minionID)
		}
		return nil
	}

	m := jobReturnTag.FindStringSubmatch(ev.Tag)
	if m == nil {
		return nil
	}
	minionID := m[2]

	var fields models.MinionUpsertFields
	switch inner.Fun {
	case "grains.items":
		blob, err := reencode(inner.Return)
		if err != nil {
			return err
		}
		fields.Grains = &blob
	case "pillar.items":
		blob, err := reencode(inner.Return)
		if err != nil {
			return err
		}
		fields.Pillars = &blob
	case "pkg.list_pkgs":
		blob, err := reencode(inner.Return)
		if err != nil {
			return err
		}
		fields.Pkgs = &blob
	case "state.apply", "state.highstate":
		if !isConformityRun(inner) {
			return nil
		}
		success, incorrect, errCount := minion.Conformity(inner.Return)
		blob, err := reencode(inner.Return)
		if err != nil {
			return err
		}
		fields.Conformity = &blob
		fields.ConformitySuccess = &success
		fields.ConformityIncorrect = &incorrect
		fields.ConformityError = &errCount
	default:
		return nil
	}

	if err := l.materializer.Upsert(ctx, minionID, now, fields); err != nil {
		return err
	}
	l.notify(minionID)
	return nil
}

// notify publishes a minion-update event so subscribed browser clients refresh; the
// broadcaster is optional (nil in tests and in any deployment without SSE wired up).
func (l *Loop) notify(minionID string) {
	if l.broadcaster == nil {
		return
	}
	l.broadcaster.Publish("minion-update", `{"id":"`+minionID+`"}`)
}

// isConformityRun reports whether inner represents a dry-run or bare state.apply/highstate
// call whose return should be counted: empty arg list or exactly ["test=true"], and
// retcode != 1.
func isConformityRun(inner innerData) bool {
	if inner.RetCode != nil && *inner.RetCode == 1 {
		return false
	}
	if len(inner.Arg) == 0 {
		return true
	}
	if len(inner.Arg) == 1 {
		if s, ok := inner.Arg[0].(string); ok && strings.TrimSpace(s) == "test=true" {
			return true
		}
	}
	return false
}

func reencode(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", models.WrapAPIError(models.KindInternalError, "failed to encode event payload", err)
	}
	return string(b), nil
}

func jsonField(raw json.RawMessage, field string) (string, bool) {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", false
	}
	s, ok := m[field].(string)
	return s, ok
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

// sleepCtx sleeps for d or returns false early if ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
