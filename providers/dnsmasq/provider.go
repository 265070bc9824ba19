// Package dnsmasq manages address records in a dnsmasq configuration file,
// on this host or on a remote host over SSH.
//
// dnsmasq has no update protocol, so Apply rewrites the managed file: the
// new content goes to a temporary file that is renamed over the old one,
// then the reload command runs. If the reload fails the previous content is
// put back, so dnsmasq never serves half of a change set.
package dnsmasq

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"gitlab.bluewillows.net/root/dynhost/pkg/sshutil"
	"gitlab.bluewillows.net/root/dynhost/pkg/zone"
)

// connector is implemented by file systems that need a session first.
type connector interface {
	Connect(ctx context.Context) error
}

// Provider implements zone.Zone for dnsmasq.
type Provider struct {
	name   string
	config *Config
	fs     sshutil.FileSystem
	runner sshutil.CommandRunner
	ssh    *sshutil.Client
	logger *slog.Logger

	// mu serialises read-modify-write cycles on the file.
	mu sync.Mutex
}

// ProviderOption is a functional option for configuring the Provider.
type ProviderOption func(*Provider)

// WithProviderLogger sets a custom logger for the provider.
func WithProviderLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithFileSystem replaces the file system.
func WithFileSystem(fs sshutil.FileSystem) ProviderOption {
	return func(p *Provider) {
		p.fs = fs
	}
}

// WithCommandRunner replaces the runner used for the reload command.
func WithCommandRunner(r sshutil.CommandRunner) ProviderOption {
	return func(p *Provider) {
		p.runner = r
	}
}

// New creates a new dnsmasq zone.
func New(name string, config *Config, opts ...ProviderOption) (*Provider, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		name:   name,
		config: config,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if config.SSH != nil && (p.fs == nil || p.runner == nil) {
		client, err := sshutil.NewClient(config.SSH, sshutil.WithLogger(p.logger))
		if err != nil {
			return nil, fmt.Errorf("zone %s: %w", name, err)
		}
		p.ssh = client
		if p.fs == nil {
			p.fs = sshutil.NewSFTPFileSystem(client, sshutil.WithSFTPLogger(p.logger))
		}
		if p.runner == nil {
			p.runner = sshutil.NewSSHCommandRunner(client, sshutil.WithCommandLogger(p.logger))
		}
	}
	if p.fs == nil {
		p.fs = sshutil.LocalFileSystem{}
	}
	if p.runner == nil {
		p.runner = sshutil.LocalCommandRunner{Logger: p.logger}
	}

	return p, nil
}

// Name returns the zone instance name.
func (p *Provider) Name() string {
	return p.name
}

// Type returns "dnsmasq".
func (p *Provider) Type() string {
	return "dnsmasq"
}

// Close releases the SSH connection, if any.
func (p *Provider) Close() error {
	if c, ok := p.fs.(*sshutil.SFTPFileSystem); ok {
		_ = c.Close()
	}
	if p.ssh != nil {
		return p.ssh.Close()
	}
	return nil
}

// Ping checks that the managed file can be read. A missing file is fine.
func (p *Provider) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, _, err := p.load(ctx); err != nil {
		return zone.WrapError(p.name, "ping", err)
	}
	return nil
}

// Records returns the records named name whose type is in types.
func (p *Provider) Records(ctx context.Context, name string, types ...zone.RecordType) ([]zone.ResourceRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, _, err := p.load(ctx)
	if err != nil {
		return nil, zone.WrapError(p.name, "lookup", err)
	}
	return f.find(zone.FQDN(name), types), nil
}

// Apply rewrites the managed file with the change set applied and reloads
// dnsmasq.
func (p *Provider) Apply(ctx context.Context, changes zone.ChangeSet) error {
	if changes.Empty() {
		return nil
	}
	if err := changes.Validate(); err != nil {
		return zone.WrapErrorCode(p.name, "apply", http.StatusBadRequest, err)
	}
	for _, r := range changes.Additions {
		if !p.inDomain(r.Name) {
			return zone.WrapErrorCode(p.name, "apply", http.StatusBadRequest,
				fmt.Errorf("%w: %s is outside domain %s", zone.ErrInvalidRecord, r.Name, p.config.Domain))
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	f, previous, err := p.load(ctx)
	if err != nil {
		return zone.WrapError(p.name, "apply", err)
	}

	for _, d := range changes.Deletions {
		if !f.remove(d) {
			return zone.WrapErrorCode(p.name, "apply", http.StatusPreconditionFailed,
				fmt.Errorf("%w: %s not in %s", zone.ErrPrecondition, d, p.config.ConfigFilePath()))
		}
	}
	for _, a := range changes.Additions {
		f.add(a)
	}

	if err := p.replace(f.render()); err != nil {
		return zone.WrapError(p.name, "apply", fmt.Errorf("%w: %w", zone.ErrUnavailable, err))
	}

	if err := p.reload(ctx); err != nil {
		p.restore(previous)
		return zone.WrapError(p.name, "apply", fmt.Errorf("%w: reload: %w", zone.ErrUnavailable, err))
	}

	p.logger.Info("applied change set",
		slog.String("provider", p.name),
		slog.String("path", p.config.ConfigFilePath()),
		slog.Int("additions", len(changes.Additions)),
		slog.Int("deletions", len(changes.Deletions)),
	)
	return nil
}

// load reads and parses the managed file. previous is the raw content, nil
// when the file does not exist.
func (p *Provider) load(ctx context.Context) (*zoneFile, []byte, error) {
	if c, ok := p.fs.(connector); ok {
		if err := c.Connect(ctx); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", zone.ErrUnavailable, err)
		}
	}

	content, err := p.fs.ReadFile(p.config.ConfigFilePath())
	switch {
	case errors.Is(err, fs.ErrNotExist):
		content = nil
	case err != nil:
		return nil, nil, fmt.Errorf("%w: reading %s: %w", zone.ErrUnavailable, p.config.ConfigFilePath(), err)
	}

	f, err := parseZoneFile(string(content), p.config.TTL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", p.config.ConfigFilePath(), err)
	}
	return f, content, nil
}

// replace writes content next to the managed file and renames it into place.
func (p *Provider) replace(content []byte) error {
	target := p.config.ConfigFilePath()
	tmp := target + ".dynhost-tmp"

	if err := p.fs.WriteFile(tmp, content, 0o644); err != nil {
		return err
	}
	if err := p.fs.Rename(tmp, target); err != nil {
		_ = p.fs.Remove(tmp)
		return err
	}
	return nil
}

// restore puts the previous content back after a failed reload.
func (p *Provider) restore(previous []byte) {
	var err error
	if previous == nil {
		err = p.fs.Remove(p.config.ConfigFilePath())
	} else {
		err = p.replace(previous)
	}
	if err != nil {
		p.logger.Error("failed to restore zone file after reload failure",
			slog.String("provider", p.name),
			slog.String("path", p.config.ConfigFilePath()),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Provider) reload(ctx context.Context) error {
	if p.config.ReloadCommand == "" {
		return nil
	}
	return p.runner.Run(ctx, p.config.ReloadCommand)
}

func (p *Provider) inDomain(name string) bool {
	if p.config.Domain == "" {
		return true
	}
	name = strings.TrimSuffix(strings.ToLower(name), ".")
	return name == p.config.Domain || strings.HasSuffix(name, "."+p.config.Domain)
}
