package registry

import (
	"fmt"
	"net"
	"time"

	"persona-gateway/config"
	"persona-gateway/internal/logger"

	"github.com/hashicorp/consul/api"
)

type ConsulRegistry struct {
	client *api.Client
}

type ServiceConfig struct {
	ID          string
	Name        string
	Tags        []string
	Address     string
	Port        int
	Meta        map[string]string
	HealthCheck *HealthCheck
}

type HealthCheck struct {
	HTTP                           string
	GRPC                           string
	Interval                       time.Duration
	Timeout                        time.Duration
	DeregisterCriticalServiceAfter time.Duration
}

// NewConsulRegistry connects to the agent and checks it has a leader.
func NewConsulRegistry(cfg config.ConsulConfig) (*ConsulRegistry, error) {
	consulConfig := api.DefaultConfig()
	consulConfig.Address = cfg.Address
	consulConfig.Scheme = cfg.Scheme
	consulConfig.Datacenter = cfg.Datacenter

	client, err := api.NewClient(consulConfig)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}
	if _, err := client.Status().Leader(); err != nil {
		return nil, fmt.Errorf("connect consul: %w", err)
	}
	logger.Info("consul connected", "address", cfg.Address)
	return &ConsulRegistry{client: client}, nil
}

func (r *ConsulRegistry) RegisterService(svc *ServiceConfig) error {
	registration := &api.AgentServiceRegistration{
		ID:      svc.ID,
		Name:    svc.Name,
		Tags:    svc.Tags,
		Address: svc.Address,
		Port:    svc.Port,
		Meta:    svc.Meta,
	}
	if hc := svc.HealthCheck; hc != nil {
		check := &api.AgentServiceCheck{
			Interval:                       hc.Interval.String(),
			Timeout:                        hc.Timeout.String(),
			DeregisterCriticalServiceAfter: hc.DeregisterCriticalServiceAfter.String(),
		}
		registration.Checks = api.AgentServiceChecks{withHTTP(*check, hc.HTTP)}
		if hc.GRPC != "" {
			registration.Checks = append(registration.Checks, withGRPC(*check, hc.GRPC))
		}
	}

	if err := r.client.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("register service %s: %w", svc.Name, err)
	}
	logger.Info("service registered", "name", svc.Name, "id", svc.ID)
	return nil
}

func withHTTP(c api.AgentServiceCheck, url string) *api.AgentServiceCheck {
	c.HTTP = url
	return &c
}

func withGRPC(c api.AgentServiceCheck, target string) *api.AgentServiceCheck {
	c.GRPC = target
	return &c
}

func (r *ConsulRegistry) DeregisterService(serviceID string) error {
	if err := r.client.Agent().ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("deregister service %s: %w", serviceID, err)
	}
	logger.Info("service deregistered", "id", serviceID)
	return nil
}

// GetLocalIP returns the address used for outbound traffic.
func GetLocalIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}

func GenerateServiceID(serviceName, ip string, port int) string {
	return fmt.Sprintf("%s-%s-%d", serviceName, ip, port)
}
