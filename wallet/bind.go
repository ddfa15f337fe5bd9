package wallet

import (
	"context"
	"sync"

	ethchecksum "github.com/ethchecksum/ethchecksum"
)

// Handler tracks one concern across wallet transitions
type Handler interface {
	OnConnect(ctx context.Context, account string, connector ethchecksum.Connector) ethchecksum.Outcome
	OnDisconnect(account string)
}

// Binding connects a session to its handlers
type Binding struct {
	ctx         context.Context
	handlers    []Handler
	unsubscribe func()
	wg          sync.WaitGroup
}

// Bind subscribes handlers to session. Connect events start each handler's
// flow on its own goroutine; disconnect events are applied synchronously so
// that guard state is reset before Disconnect returns.
//
// If the session is already connected, a connect is dispatched immediately.
func Bind(ctx context.Context, session *Session, handlers ...Handler) *Binding {
	b := &Binding{
		ctx:      ctx,
		handlers: handlers,
	}
	b.unsubscribe = session.Subscribe(b.dispatch)

	if account, connector, connected := session.Current(); connected {
		b.dispatch(Event{Type: Connected, Account: account, Connector: connector})
	}
	return b
}

func (b *Binding) dispatch(ev Event) {
	switch ev.Type {
	case Connected:
		for _, h := range b.handlers {
			b.wg.Add(1)
			go func(h Handler) {
				defer b.wg.Done()
				h.OnConnect(b.ctx, ev.Account, ev.Connector)
			}(h)
		}
	case Disconnected:
		for _, h := range b.handlers {
			h.OnDisconnect(ev.Account)
		}
	}
}

// Wait blocks until every connect flow started so far has returned
func (b *Binding) Wait() {
	b.wg.Wait()
}

// Close unsubscribes from the session and waits for running flows
func (b *Binding) Close() {
	b.unsubscribe()
	b.wg.Wait()
}
