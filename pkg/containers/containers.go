// Package containers boots disposable Ollama and pgvector instances for
// experiment runs and integration tests.
package containers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/xhad/braggingrights/pkg/llm"
	"github.com/xhad/braggingrights/pkg/log"
)

const (
	DefaultOllamaImage   = "ollama/ollama:latest"
	DefaultPostgresImage = "pgvector/pgvector:pg16"

	ollamaPort   = "11434/tcp"
	postgresPort = "5432/tcp"
)

// Ollama is a running Ollama container.
type Ollama struct {
	container testcontainers.Container
	endpoint  string

	mu     sync.Mutex
	pulled map[string]bool
}

// StartOllama starts an Ollama container and waits until its API answers.
func StartOllama(ctx context.Context, image string) (*Ollama, error) {
	if image == "" {
		image = DefaultOllamaImage
	}

	req := testcontainers.ContainerRequest{
		Image:        image,
		ExposedPorts: []string{ollamaPort},
		WaitingFor: wait.ForHTTP("/").
			WithPort(ollamaPort).
			WithStartupTimeout(2 * time.Minute),
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		terminate(ctx, c)
		return nil, fmt.Errorf("failed to start ollama container: %w", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		terminate(ctx, c)
		return nil, fmt.Errorf("failed to get ollama host: %w", err)
	}
	port, err := c.MappedPort(ctx, ollamaPort)
	if err != nil {
		terminate(ctx, c)
		return nil, fmt.Errorf("failed to get ollama port: %w", err)
	}

	o := &Ollama{
		container: c,
		endpoint:  fmt.Sprintf("http://%s:%s", host, port.Port()),
		pulled:    make(map[string]bool),
	}
	log.Info("ollama container ready", "endpoint", o.endpoint, "image", image)
	return o, nil
}

// Endpoint is the base URL of the Ollama API.
func (o *Ollama) Endpoint() string {
	return o.endpoint
}

// Pull runs "ollama pull" inside the container. Repeated pulls of the same
// model through one handle are no-ops.
func (o *Ollama) Pull(ctx context.Context, model string) error {
	name := llm.NormalizeModel(model)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pulled[name] {
		return nil
	}

	code, reader, err := o.container.Exec(ctx, []string{"ollama", "pull", model})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", llm.ErrModelUnavailable, model, err)
	}
	var output []byte
	if reader != nil {
		output, _ = io.ReadAll(reader)
	}
	if code != 0 {
		return fmt.Errorf("%w: %s: ollama pull exited with %d: %s",
			llm.ErrModelUnavailable, model, code, strings.TrimSpace(string(output)))
	}

	o.pulled[name] = true
	return nil
}

func (o *Ollama) Terminate(ctx context.Context) error {
	return o.container.Terminate(ctx)
}

type PostgresOptions struct {
	Image    string
	User     string
	Password string
	Database string
}

// Postgres is a running PostgreSQL container with the pgvector extension
// available.
type Postgres struct {
	container testcontainers.Container
	connURL   string
}

func StartPgvector(ctx context.Context, opts PostgresOptions) (*Postgres, error) {
	if opts.Image == "" {
		opts.Image = DefaultPostgresImage
	}
	if opts.User == "" {
		opts.User = "postgres"
	}
	if opts.Password == "" {
		opts.Password = "postgres"
	}
	if opts.Database == "" {
		opts.Database = "postgres"
	}

	req := testcontainers.ContainerRequest{
		Image:        opts.Image,
		ExposedPorts: []string{postgresPort},
		Env: map[string]string{
			"POSTGRES_USER":     opts.User,
			"POSTGRES_PASSWORD": opts.Password,
			"POSTGRES_DB":       opts.Database,
		},
		// the server restarts once after init, so the line shows up twice
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort(postgresPort),
		).WithDeadline(time.Minute),
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		terminate(ctx, c)
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		terminate(ctx, c)
		return nil, fmt.Errorf("failed to get postgres host: %w", err)
	}
	port, err := c.MappedPort(ctx, postgresPort)
	if err != nil {
		terminate(ctx, c)
		return nil, fmt.Errorf("failed to get postgres port: %w", err)
	}

	p := &Postgres{
		container: c,
		connURL:   connString(opts, host, port.Port()),
	}
	log.Info("pgvector container ready", "host", host, "port", port.Port(), "image", opts.Image)
	return p, nil
}

// ConnString is a libpq URL for the container's database.
func (p *Postgres) ConnString() string {
	return p.connURL
}

func (p *Postgres) Terminate(ctx context.Context) error {
	return p.container.Terminate(ctx)
}

// Environment is the pair of services one experiment run needs.
type Environment struct {
	Ollama   *Ollama
	Postgres *Postgres
}

type EnvironmentOptions struct {
	OllamaImage string
	Postgres    PostgresOptions
	// SkipPostgres leaves the database out, for in-memory vector stores.
	SkipPostgres bool
}

func StartEnvironment(ctx context.Context, opts EnvironmentOptions) (*Environment, error) {
	o, err := StartOllama(ctx, opts.OllamaImage)
	if err != nil {
		return nil, err
	}
	env := &Environment{Ollama: o}

	if !opts.SkipPostgres {
		p, err := StartPgvector(ctx, opts.Postgres)
		if err != nil {
			terminate(ctx, o.container)
			return nil, err
		}
		env.Postgres = p
	}
	return env, nil
}

// Terminate stops every started container and reports all failures.
func (e *Environment) Terminate(ctx context.Context) error {
	var errs []error
	if e.Ollama != nil {
		errs = append(errs, e.Ollama.Terminate(ctx))
	}
	if e.Postgres != nil {
		errs = append(errs, e.Postgres.Terminate(ctx))
	}
	return errors.Join(errs...)
}

func connString(opts PostgresOptions, host, port string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(opts.User, opts.Password),
		Host:     host + ":" + port,
		Path:     "/" + opts.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func terminate(ctx context.Context, c testcontainers.Container) {
	if c == nil {
		return
	}
	if err := c.Terminate(ctx); err != nil {
		log.Error(err, "failed to terminate container")
	}
}
