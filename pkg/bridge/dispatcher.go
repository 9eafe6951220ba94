package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/veiloq/wallet-bridge/pkg/jsonrpc"
	"github.com/veiloq/wallet-bridge/pkg/logging"
	"github.com/veiloq/wallet-bridge/pkg/provider"
)

// Bridge-internal RPC methods, answered without touching the wallet
// provider. Everything else is forwarded verbatim.
const (
	MethodPing                  = "ping"
	MethodGetAvailableProviders = "rotki_getAvailableProviders"
	MethodGetSelectedProvider   = "rotki_getSelectedProvider"
	MethodSelectProvider        = "rotki_selectProvider"

	// MethodRequestAccounts is the one forwarded method with special
	// retry handling.
	MethodRequestAccounts = "eth_requestAccounts"
)

// PingResult is the fixed readiness sentinel. A pong only means the
// bridge itself is reachable; it says nothing about wallet availability.
const PingResult = "pong"

// NoProviderMessage is the error message for forwarded calls without an
// active provider.
const NoProviderMessage = "No browser wallet provider found"

// AccountsRetryDelay is the pause before the single eth_requestAccounts
// retry after a cold-start user rejection.
const AccountsRetryDelay = 500 * time.Millisecond

// Dispatcher routes incoming requests to bridge-internal handlers or
// forwards them to the active wallet provider. It owns the per-provider
// "successful accounts request" flag that bounds the 4001 retry.
type Dispatcher struct {
	logger     logging.Logger
	registry   *provider.Registry
	detectOpts provider.DetectOptions

	mu                 sync.Mutex
	accountsSucceeded  bool
	accountsRetryDelay time.Duration

	unsubscribe func()
}

// NewDispatcher creates a dispatcher bound to a provider registry.
// Detection requested through rotki_getAvailableProviders runs with the
// given options; zero values fall back to the registry defaults. The
// accounts retry flag resets whenever the registry switches providers.
func NewDispatcher(registry *provider.Registry, detect provider.DetectOptions, logger logging.Logger) *Dispatcher {
	d := &Dispatcher{
		logger:             logger.WithFields(logging.String("component", "dispatcher")),
		registry:           registry,
		detectOpts:         detect,
		accountsRetryDelay: AccountsRetryDelay,
	}
	d.unsubscribe = registry.OnChange(func(provider.Provider) {
		d.mu.Lock()
		d.accountsSucceeded = false
		d.mu.Unlock()
	})
	return d
}

// Close detaches the dispatcher from the registry.
func (d *Dispatcher) Close() {
	if d.unsubscribe != nil {
		d.unsubscribe()
		d.unsubscribe = nil
	}
}

// Dispatch handles one validated request and always produces a response
// message: application failures become JSON-RPC error responses, never
// Go errors.
func (d *Dispatcher) Dispatch(ctx context.Context, req *jsonrpc.Message) *jsonrpc.Message {
	switch req.Method {
	case MethodPing:
		return d.result(req.ID, PingResult)

	case MethodGetAvailableProviders:
		infos, err := d.registry.Detect(ctx, d.detectOpts)
		if err != nil {
			return jsonrpc.NewError(req.ID, jsonrpc.CodeInternalError, err.Error(), nil)
		}
		return d.result(req.ID, infos)

	case MethodGetSelectedProvider:
		info, ok := d.registry.SelectedInfo()
		if !ok {
			return d.result(req.ID, nil)
		}
		return d.result(req.ID, info)

	case MethodSelectProvider:
		uuid, ok := stringParam(req.Params, 0)
		if !ok {
			return jsonrpc.NewError(req.ID, jsonrpc.CodeInvalidParams,
				"rotki_selectProvider requires a provider uuid parameter", nil)
		}
		return d.result(req.ID, d.registry.Select(uuid))

	default:
		return d.forward(ctx, req)
	}
}

// forward executes a wallet method against the active provider.
func (d *Dispatcher) forward(ctx context.Context, req *jsonrpc.Message) *jsonrpc.Message {
	active := d.registry.ActiveProvider()
	if active == nil {
		return jsonrpc.NewError(req.ID, jsonrpc.CodeMethodNotFound, NoProviderMessage, nil)
	}

	var (
		res interface{}
		err error
	)
	if req.Method == MethodRequestAccounts {
		res, err = d.requestAccounts(ctx, active, req.Params)
	} else {
		res, err = active.Request(ctx, req.Method, req.Params)
	}

	if err != nil {
		d.logger.Debug("forwarded request failed",
			logging.String("method", req.Method),
			logging.Error(err))
		return errorResponse(req.ID, err)
	}
	return d.result(req.ID, res)
}

// requestAccounts forwards eth_requestAccounts with the cold-start
// special cases: a best-effort Initialize before the first attempt for
// providers that support it, and exactly one retry after a 4001 user
// rejection as long as no accounts request has succeeded for the current
// provider. Any later 4001 surfaces immediately.
func (d *Dispatcher) requestAccounts(ctx context.Context, active provider.Provider, params []interface{}) (interface{}, error) {
	d.mu.Lock()
	firstForProvider := !d.accountsSucceeded
	delay := d.accountsRetryDelay
	d.mu.Unlock()

	if firstForProvider {
		if init, ok := active.(provider.Initializer); ok {
			if err := init.Initialize(ctx); err != nil {
				// Initialization failure does not abort the request.
				d.logger.Warn("provider initialization failed", logging.Error(err))
			}
		}
	}

	var result interface{}
	err := retry.Do(
		func() error {
			res, err := active.Request(ctx, MethodRequestAccounts, params)
			if err != nil {
				return err
			}
			result = res
			return nil
		},
		retry.Attempts(2),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return firstForProvider && isUserRejection(err)
		}),
	)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.accountsSucceeded = true
	d.mu.Unlock()
	return result, nil
}

// setAccountsRetryDelay shortens the retry pause in tests.
func (d *Dispatcher) setAccountsRetryDelay(delay time.Duration) {
	d.mu.Lock()
	d.accountsRetryDelay = delay
	d.mu.Unlock()
}

func (d *Dispatcher) result(id []byte, v interface{}) *jsonrpc.Message {
	msg, err := jsonrpc.NewResult(id, v)
	if err != nil {
		d.logger.Error("failed to encode result", logging.Error(err))
		return jsonrpc.NewError(id, jsonrpc.CodeInternalError, "failed to encode result", nil)
	}
	return msg
}

// errorResponse converts a provider failure into a JSON-RPC error
// response, reusing the provider's numeric code when it supplied one.
func errorResponse(id []byte, err error) *jsonrpc.Message {
	var rpcErr *jsonrpc.ErrorObject
	if errors.As(err, &rpcErr) {
		return jsonrpc.NewError(id, rpcErr.Code, rpcErr.Message, rpcErr.Data)
	}
	return jsonrpc.NewError(id, jsonrpc.CodeInternalError, err.Error(), nil)
}

func isUserRejection(err error) bool {
	var rpcErr *jsonrpc.ErrorObject
	return errors.As(err, &rpcErr) && rpcErr.Code == jsonrpc.CodeUserRejected
}

func stringParam(params []interface{}, index int) (string, bool) {
	if index >= len(params) {
		return "", false
	}
	s, ok := params[index].(string)
	return s, ok
}
