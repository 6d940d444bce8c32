package registry

import (
	"fmt"
	"time"

	"persona-gateway/config"
	"persona-gateway/internal/logger"
)

// ServiceManager owns one registration for the life of the process.
type ServiceManager struct {
	registry *ConsulRegistry
	service  *ServiceConfig
}

func NewServiceManager(consulCfg config.ConsulConfig, service *ServiceConfig) (*ServiceManager, error) {
	reg, err := NewConsulRegistry(consulCfg)
	if err != nil {
		return nil, err
	}
	return &ServiceManager{registry: reg, service: service}, nil
}

// GatewayService describes this gateway for consul: an HTTP check on /health
// and, when grpcPort is set, a gRPC health check.
func GatewayService(server config.ServerConfig, ip string) *ServiceConfig {
	svc := &ServiceConfig{
		ID:      GenerateServiceID(server.Name, ip, server.Port),
		Name:    server.Name,
		Tags:    []string{"http", "chat", server.Environment},
		Address: ip,
		Port:    server.Port,
		Meta:    map[string]string{"version": server.Version},
		HealthCheck: &HealthCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", ip, server.Port),
			Interval:                       10 * time.Second,
			Timeout:                        5 * time.Second,
			DeregisterCriticalServiceAfter: time.Minute,
		},
	}
	if server.GRPCPort > 0 {
		svc.HealthCheck.GRPC = fmt.Sprintf("%s:%d", ip, server.GRPCPort)
	}
	return svc
}

func (sm *ServiceManager) Start() error {
	return sm.registry.RegisterService(sm.service)
}

func (sm *ServiceManager) Stop() {
	if err := sm.registry.DeregisterService(sm.service.ID); err != nil {
		logger.Error("deregister failed", "error", err)
	}
}
