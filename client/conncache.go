package client

import (
	"container/list"
	"context"
	"sync"
	"time"
)

/*
ConnectionCache is a pool of sessions. Applications call Connect() and get, transparently,
either a cached client or a newly connected one. After being finished with using the client,
the application should call Return() with it if it wants to use it later again.

Watch events of pooled clients are not delivered to anyone.
*/
type ConnectionCache struct {
	// Map address -> clients
	cache  map[string]*list.List
	params *ClientParams

	mx sync.Mutex
}

// params is used for every client the cache connects; nil means NewParams().
func NewConnCache(params *ClientParams) *ConnectionCache {
	if params == nil {
		params = NewParams()
	}
	return &ConnectionCache{cache: make(map[string]*list.List), params: params}
}

/*
Get a client, either from the pool or a new one, depending on if there are clients
available.
*/
func (cc *ConnectionCache) Connect(ctx context.Context, addr string) (*Client, error) {
	pa, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	key := pa.String()

	cc.mx.Lock()
	if cls, ok := cc.cache[key]; ok && cls.Len() > 0 {
		cl := cls.Front().Value.(*Client)
		cls.Remove(cls.Front())
		cc.mx.Unlock()
		return cl, nil
	}
	cc.mx.Unlock()

	cl, _, err := NewClient(ctx, key, cc.params)
	return cl, err
}

/*
Return a client into the pool. Argument is a pointer to a pointer to make sure that the client
is not used by the calling function after this call.
*/
func (cc *ConnectionCache) Return(clp **Client) {
	cc.mx.Lock()
	defer cc.mx.Unlock()

	cl := *clp
	*clp = nil

	key := cl.addr.String()
	cls, ok := cc.cache[key]
	if !ok {
		// Happens when there was a garbage collection (CleanOld()) in between
		cls = list.New()
		cc.cache[key] = cls
	}
	cls.PushBack(cl)
}

/*
Remove and close all clients from the pool that were last used before time.Now() - older_than.
Also cleans up empty cache entries.
*/
func (cc *ConnectionCache) CleanOld(older_than time.Duration) {
	cc.mx.Lock()
	defer cc.mx.Unlock()

	for h, cls := range cc.cache {
		var next *list.Element
		for e := cls.Front(); e != nil; e = next {
			next = e.Next()
			cl := e.Value.(*Client)
			if time.Since(cl.lastUsedTime()) >= older_than {
				cl.Close()
				cls.Remove(e)
			}
		}
		if cls.Len() == 0 {
			delete(cc.cache, h)
		}
	}
}

// Closes all pooled clients
func (cc *ConnectionCache) CloseAll() {
	cc.CleanOld(0 * time.Second)
}

// Number of idle clients in the pool.
func (cc *ConnectionCache) Idle() int {
	cc.mx.Lock()
	defer cc.mx.Unlock()

	n := 0
	for _, cls := range cc.cache {
		n += cls.Len()
	}
	return n
}
