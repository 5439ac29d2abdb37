package main

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opd-ai/meadowlink/transport"
	"github.com/sirupsen/logrus"
)

// selfInfo describes the local node.
type selfInfo struct {
	Name      string `json:"name"`
	PublicKey string `json:"public_key"`
	Endpoint  string `json:"endpoint"`
	Invite    string `json:"invite"`
}

// statusBoard holds the latest copy of the node state for HTTP readers. The
// transport itself is never touched from the HTTP goroutines.
type statusBoard struct {
	mu      sync.RWMutex
	self    selfInfo
	peers   []transport.PeerInfo
	stats   transport.Stats
	updated time.Time
}

func newStatusBoard() *statusBoard {
	return &statusBoard{}
}

func (b *statusBoard) publish(self selfInfo, peers []transport.PeerInfo, stats transport.Stats) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.self = self
	b.peers = peers
	b.stats = stats
	b.updated = time.Now()
}

// peersResponse is the body of GET /peers.
type peersResponse struct {
	Count   int                  `json:"count"`
	Peers   []transport.PeerInfo `json:"peers"`
	Updated time.Time            `json:"updated"`
}

func newStatusRouter(b *statusBoard) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/self", func(c *gin.Context) {
		b.mu.RLock()
		defer b.mu.RUnlock()
		if b.updated.IsZero() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "node not started"})
			return
		}
		c.JSON(http.StatusOK, b.self)
	})

	router.GET("/peers", func(c *gin.Context) {
		b.mu.RLock()
		defer b.mu.RUnlock()
		peers := b.peers
		if peers == nil {
			peers = []transport.PeerInfo{}
		}
		c.JSON(http.StatusOK, peersResponse{Count: len(peers), Peers: peers, Updated: b.updated})
	})

	router.GET("/stats", func(c *gin.Context) {
		b.mu.RLock()
		defer b.mu.RUnlock()
		c.JSON(http.StatusOK, b.stats)
	})

	return router
}

// startStatusServer serves the status board on addr in the background.
func startStatusServer(addr string, b *statusBoard) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              addr,
		Handler:           newStatusRouter(b),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logrus.WithField("addr", addr).Info("Status server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithFields(logrus.Fields{
				"function": "startStatusServer",
				"addr":     addr,
				"error":    err.Error(),
			}).Error("Status server failed")
		}
	}()
	return srv
}
