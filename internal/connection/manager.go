package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BoostryJP/ibet-prime-wst/internal/config"
	"github.com/BoostryJP/ibet-prime-wst/internal/metrics"
	"github.com/BoostryJP/ibet-prime-wst/pkg/utils"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// Manager defines the connection manager interface
type Manager interface {
	GetClient() (*ethclient.Client, error)
	GetClientWithContext(ctx context.Context) (*ethclient.Client, error)
	HealthCheck() error
	HealthCheckWithContext(ctx context.Context) error
	GetChainID() (uint64, error)
	GetLatestBlockNumber() (uint64, error)
	IsConnected() bool
	Close() error
	Stats() ConnectionStats
}

// ConnectionManager implements the Manager interface with failover across
// the primary and backup nodes
type ConnectionManager struct {
	config          *config.ChainConfig
	primaryURL      string
	backupURLs      []string
	currentIndex    int
	client          *ethclient.Client
	mu              sync.RWMutex
	logger          *logrus.Logger
	stats           ConnectionStats
	lastHealthCheck time.Time
	isHealthy       bool
	metricsManager  *metrics.Manager
}

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	TotalRequests   uint64    `json:"total_requests"`
	FailedRequests  uint64    `json:"failed_requests"`
	Reconnects      uint64    `json:"reconnects"`
	CurrentURL      string    `json:"current_url"`
	LastConnectedAt time.Time `json:"last_connected_at"`
	LastHealthCheck time.Time `json:"last_health_check"`
	IsHealthy       bool      `json:"is_healthy"`
	ChainID         uint64    `json:"chain_id"`
	LatestBlock     uint64    `json:"latest_block"`
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(cfg *config.ChainConfig) *ConnectionManager {
	return &ConnectionManager{
		config:       cfg,
		primaryURL:   cfg.NodeURL,
		backupURLs:   cfg.BackupNodes,
		currentIndex: 0,
		logger:       utils.GetLogger(),
		stats: ConnectionStats{
			CurrentURL: cfg.NodeURL,
		},
	}
}

// SetMetricsManager enables connection metrics
func (cm *ConnectionManager) SetMetricsManager(m *metrics.Manager) {
	cm.metricsManager = m
}

// GetClient returns the current client connection
func (cm *ConnectionManager) GetClient() (*ethclient.Client, error) {
	return cm.GetClientWithContext(context.Background())
}

// GetClientWithContext returns the current client, connecting or failing over if needed
func (cm *ConnectionManager) GetClientWithContext(ctx context.Context) (*ethclient.Client, error) {
	cm.mu.RLock()
	client := cm.client
	lastCheck := cm.lastHealthCheck
	cm.mu.RUnlock()

	if client == nil {
		return cm.connect(ctx)
	}

	// Re-check a connection that has been idle for a while
	if time.Since(lastCheck) > time.Minute {
		if err := cm.quickHealthCheck(ctx, client); err != nil {
			cm.logger.WithError(err).Warn("Client health check failed, reconnecting")
			return cm.reconnect(ctx)
		}
		cm.mu.Lock()
		cm.lastHealthCheck = time.Now()
		cm.mu.Unlock()
	}

	cm.mu.Lock()
	cm.stats.TotalRequests++
	cm.mu.Unlock()
	return client, nil
}

// connect establishes a new connection
func (cm *ConnectionManager) connect(ctx context.Context) (*ethclient.Client, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.client != nil {
		return cm.client, nil
	}

	urls := cm.getAllURLs()
	attempts := cm.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		for _, url := range urls {
			cm.logger.WithFields(logrus.Fields{"url": url, "attempt": attempt + 1}).Info("Attempting connection")

			client, err := cm.dialWithTimeout(ctx, url)
			if err != nil {
				cm.logger.WithFields(logrus.Fields{"url": url, "error": err}).Warn("Connection failed")
				cm.stats.FailedRequests++
				cm.recordConnectionError(url, "dial_failed")
				continue
			}

			if err := cm.quickHealthCheck(ctx, client); err != nil {
				client.Close()
				cm.logger.WithFields(logrus.Fields{"url": url, "error": err}).Warn("Health check failed after connection")
				cm.recordConnectionError(url, "health_check_failed")
				continue
			}

			cm.client = client
			cm.currentIndex = cm.indexOf(url)
			cm.stats.CurrentURL = url
			cm.stats.LastConnectedAt = time.Now()
			cm.isHealthy = true
			cm.lastHealthCheck = time.Now()

			cm.logger.WithField("url", url).Info("Successfully connected to chain node")
			return client, nil
		}

		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cm.config.RetryDelay):
			}
		}
	}

	return nil, utils.NewAppError(utils.ErrCodeConnection, "Failed to connect to any chain node",
		"All connection attempts exhausted")
}

// reconnect drops the current client and connects again
func (cm *ConnectionManager) reconnect(ctx context.Context) (*ethclient.Client, error) {
	cm.mu.Lock()
	if cm.client != nil {
		cm.client.Close()
		cm.client = nil
	}
	cm.isHealthy = false
	cm.stats.Reconnects++
	cm.mu.Unlock()

	return cm.connect(ctx)
}

// dialWithTimeout creates a connection with timeout
func (cm *ConnectionManager) dialWithTimeout(ctx context.Context, url string) (*ethclient.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cm.config.RequestTimeout)
	defer cancel()

	return ethclient.DialContext(dialCtx, url)
}

// quickHealthCheck performs a quick health check
func (cm *ConnectionManager) quickHealthCheck(ctx context.Context, client *ethclient.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := client.ChainID(checkCtx)
	return err
}

// HealthCheck performs a comprehensive health check
func (cm *ConnectionManager) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return cm.HealthCheckWithContext(ctx)
}

// HealthCheckWithContext verifies the chain id and that the node serves blocks
func (cm *ConnectionManager) HealthCheckWithContext(ctx context.Context) error {
	client, err := cm.GetClientWithContext(ctx)
	if err != nil {
		cm.setHealthy(false)
		return err
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		cm.setHealthy(false)
		return utils.WrapAppError(utils.ErrCodeConnection, "Failed to get chain ID", err)
	}

	expected := uint64(cm.config.ChainID)
	if chainID.Uint64() != expected {
		cm.setHealthy(false)
		return utils.NewAppError(utils.ErrCodeConnection,
			"Chain ID mismatch",
			fmt.Sprintf("expected %d, got %d", expected, chainID.Uint64()))
	}

	blockNumber, err := client.BlockNumber(ctx)
	if err != nil {
		cm.setHealthy(false)
		return utils.WrapAppError(utils.ErrCodeConnection, "Failed to get latest block", err)
	}

	cm.mu.Lock()
	cm.stats.ChainID = chainID.Uint64()
	cm.stats.LatestBlock = blockNumber
	cm.stats.LastHealthCheck = time.Now()
	cm.stats.IsHealthy = true
	cm.lastHealthCheck = time.Now()
	cm.isHealthy = true
	url := cm.stats.CurrentURL
	cm.mu.Unlock()

	if cm.metricsManager != nil {
		cm.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("chain", true)
	}

	cm.logger.WithFields(logrus.Fields{
		"chain_id":     chainID.Uint64(),
		"latest_block": blockNumber,
		"url":          url,
	}).Debug("Health check passed")

	return nil
}

// GetChainID returns the chain id reported by the node
func (cm *ConnectionManager) GetChainID() (uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := cm.GetClientWithContext(ctx)
	if err != nil {
		return 0, err
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return 0, err
	}

	return chainID.Uint64(), nil
}

// GetLatestBlockNumber returns the latest block number
func (cm *ConnectionManager) GetLatestBlockNumber() (uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := cm.GetClientWithContext(ctx)
	if err != nil {
		return 0, err
	}

	blockNumber, err := client.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}

	cm.mu.Lock()
	cm.stats.LatestBlock = blockNumber
	cm.mu.Unlock()

	return blockNumber, nil
}

// IsConnected returns whether the manager is connected
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.client != nil && cm.isHealthy
}

// Close closes the connection
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.client != nil {
		cm.client.Close()
		cm.client = nil
	}

	cm.isHealthy = false
	cm.logger.Info("Connection manager closed")
	return nil
}

// Stats returns connection statistics
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.stats
}

func (cm *ConnectionManager) setHealthy(healthy bool) {
	cm.mu.Lock()
	cm.isHealthy = healthy
	cm.stats.IsHealthy = healthy
	cm.mu.Unlock()

	if cm.metricsManager != nil {
		cm.metricsManager.GetPrometheusMetrics().UpdateComponentHealth("chain", healthy)
	}
}

func (cm *ConnectionManager) recordConnectionError(endpoint, errorType string) {
	if cm.metricsManager != nil {
		cm.metricsManager.GetPrometheusMetrics().RecordConnectionError(endpoint, errorType)
	}
}

// getAllURLs returns all available URLs starting from the last working one
func (cm *ConnectionManager) getAllURLs() []string {
	urls := []string{cm.primaryURL}
	urls = append(urls, cm.backupURLs...)

	if cm.currentIndex > 0 && cm.currentIndex < len(urls) {
		rotated := make([]string, len(urls))
		copy(rotated, urls[cm.currentIndex:])
		copy(rotated[len(urls)-cm.currentIndex:], urls[:cm.currentIndex])
		return rotated
	}

	return urls
}

func (cm *ConnectionManager) indexOf(url string) int {
	if url == cm.primaryURL {
		return 0
	}
	for i, backup := range cm.backupURLs {
		if backup == url {
			return i + 1
		}
	}
	return 0
}
