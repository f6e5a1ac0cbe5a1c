package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	chromePort      = "3000/tcp"
	containerData   = "/data"
	readyRetries    = 20
	readyRetryDelay = 500 * time.Millisecond
)

// Pool launches Chrome inside Docker containers
type Pool struct {
	client *client.Client
	image  string
	logger *zap.Logger
}

// NewPool connects to the Docker daemon from the environment
func NewPool(image string, logger *zap.Logger) (*Pool, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Pool{
		client: cli,
		image:  image,
		logger: logger.Named("browser-pool"),
	}, nil
}

// Launch starts a Chrome container and returns a remote allocator attached to it
func (p *Pool) Launch(ctx context.Context, opts LaunchOptions) (*Instance, error) {
	id := uuid.New().String()

	userDataDir := opts.UserDataDir
	if userDataDir == "" {
		userDataDir = filepath.Join(os.TempDir(), "browser-data", id)
	}
	userDataDir, err := filepath.Abs(userDataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user data directory: %w", err)
	}
	if err := os.MkdirAll(userDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create user data directory: %w", err)
	}

	containerConfig := &container.Config{
		Image: p.image,
		Labels: map[string]string{
			"instance-id": id,
			"managed-by":  "whatsapp-sender",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"MAX_CONCURRENT_SESSIONS=1",
			"PREBOOT_CHROME=true",
			"KEEP_ALIVE=true",
			"EXIT_ON_HEALTH_FAILURE=false",
		},
		ExposedPorts: nat.PortSet{
			chromePort: struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			chromePort: []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: "0",
				},
			},
		},
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: userDataDir,
				Target: containerData,
			},
		},
	}

	resp, err := p.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, fmt.Sprintf("wa-sender-%s", id[:8]))
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.removeContainer(resp.ID)
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := p.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		p.removeContainer(resp.ID)
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	bindings := inspect.NetworkSettings.Ports[chromePort]
	if len(bindings) == 0 {
		p.removeContainer(resp.ID)
		return nil, fmt.Errorf("container %s exposes no chrome port", resp.ID[:12])
	}
	port := bindings[0].HostPort

	if err := p.waitForBrowserReady(ctx, port); err != nil {
		p.removeContainer(resp.ID)
		return nil, fmt.Errorf("browser failed to become ready: %w", err)
	}

	connectURL := fmt.Sprintf("ws://127.0.0.1:%s?--user-data-dir=%s", port, containerData)
	allocCtx, cancel := chromedp.NewRemoteAllocator(context.Background(), connectURL, chromedp.NoModifyURL)

	p.logger.Info("browser container started",
		zap.String("container", resp.ID[:12]),
		zap.String("port", port))

	containerID := resp.ID
	return &Instance{
		ID:          id,
		ContainerID: containerID,
		ConnectURL:  connectURL,
		UserDataDir: userDataDir,
		AllocCtx:    allocCtx,
		cancel:      cancel,
		stop: func(ctx context.Context) error {
			return p.StopBrowser(ctx, containerID)
		},
		running: func(ctx context.Context) bool {
			return p.IsHealthy(ctx, containerID)
		},
	}, nil
}

// StopBrowser stops and removes a browser container
func (p *Pool) StopBrowser(ctx context.Context, containerID string) error {
	timeout := 10
	stopOptions := container.StopOptions{
		Timeout: &timeout,
	}

	if err := p.client.ContainerStop(ctx, containerID, stopOptions); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}

	if err := p.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}

	p.logger.Info("browser container stopped", zap.String("container", containerID[:12]))
	return nil
}

// IsHealthy reports whether the container is still running
func (p *Pool) IsHealthy(ctx context.Context, containerID string) bool {
	inspect, err := p.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return false
	}
	return inspect.State.Running
}

// EnsureImage pulls the Chrome image unless it is already present
func (p *Pool) EnsureImage(ctx context.Context) error {
	images, err := p.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return err
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == p.image {
				return nil
			}
		}
	}

	p.logger.Info("pulling browser image", zap.String("image", p.image))
	reader, err := p.client.ImagePull(ctx, p.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// Close releases the Docker client
func (p *Pool) Close() error {
	return p.client.Close()
}

func (p *Pool) removeContainer(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		p.logger.Warn("failed to remove container", zap.String("container", containerID[:12]), zap.Error(err))
	}
}

// waitForBrowserReady polls the /json/version endpoint until Chrome answers
func (p *Pool) waitForBrowserReady(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://127.0.0.1:%s/json/version", port)

	for i := 0; i < readyRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				// Give the websocket endpoint a moment after HTTP comes up
				time.Sleep(readyRetryDelay)
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyRetryDelay):
		}
	}

	return fmt.Errorf("browser did not become ready after %d retries", readyRetries)
}
