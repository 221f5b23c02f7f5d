package runtime

import (
	"context"
	"slices"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/script-bridge/class"
	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/errors"
)

// ReloadResult tells Reload how to proceed after a failed attempt.
type ReloadResult uint8

const (
	// ReloadSuccess treats the failure as handled and keeps the current
	// script domain.
	ReloadSuccess ReloadResult = iota
	// ReloadRetry attempts the same sources again, up to the configured
	// retry limit.
	ReloadRetry
	// ReloadRevert reloads the sources of the current script domain.
	ReloadRevert
	// ReloadAbort tears the system down. It is uninitialized afterwards.
	ReloadAbort
)

func (r ReloadResult) String() string {
	switch r {
	case ReloadSuccess:
		return "success"
	case ReloadRetry:
		return "retry"
	case ReloadRevert:
		return "revert"
	case ReloadAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// ReloadHandler decides how to continue after attempt (0-based) failed with
// err. A nested Reload from the handler fails.
type ReloadHandler func(ctx context.Context, err error, attempt int) ReloadResult

// Listener observes script domain reloads.
type Listener interface {
	OnReloadStart()
	OnReloadComplete()
}

// AddListener registers l. Adding the same listener twice has no effect.
func (s *System) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.listeners, l) {
		s.listeners = append(s.listeners, l)
	}
}

// RemoveListener unregisters l.
func (s *System) RemoveListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.listeners, l); i >= 0 {
		s.listeners = slices.Delete(s.listeners, i, i+1)
	}
}

// Reload replaces the script domain with a new one built from sources, or
// from the current sources when none are given. Bridged entities and script
// instances are constructed again in the new domain; instances of the old
// domain stop being alive.
//
// When building the new domain fails the ReloadHandler decides what follows.
func (s *System) Reload(ctx context.Context, sources ...engine.Source) error {
	s.mu.Lock()
	if s.root == nil {
		s.mu.Unlock()
		return errors.NotInitialized(errors.PhaseDomain, "script system")
	}
	if s.reloading {
		s.mu.Unlock()
		return errors.InvalidInput(errors.PhaseDomain, "reload already in progress")
	}
	s.reloading = true
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.reloading = false
		s.mu.Unlock()
	}()

	for _, l := range listeners {
		l.OnReloadStart()
	}
	Logger().Info("reload started", zap.Int("sources", len(sources)))

	err := s.reload(ctx, sources)

	for _, l := range listeners {
		l.OnReloadComplete()
	}
	if err != nil {
		Logger().Error("reload failed", zap.Error(err))
		return err
	}
	Logger().Info("reload complete")
	return nil
}

func (s *System) reload(ctx context.Context, sources []engine.Source) error {
	s.mu.Lock()
	prev := s.sources
	s.mu.Unlock()

	next := sources
	if len(next) == 0 {
		next = prev
	}
	reverted := false

	for attempt := 0; ; attempt++ {
		script, module, err := s.buildScriptDomain(ctx, next)
		if err == nil {
			return s.swap(ctx, script, module, next)
		}

		result := ReloadAbort
		if s.onFailure != nil {
			result = s.onFailure(ctx, err, attempt)
		}
		Logger().Warn("reload attempt failed",
			zap.Int("attempt", attempt),
			zap.Stringer("result", result),
			zap.Error(err))

		switch result {
		case ReloadSuccess:
			return nil
		case ReloadRetry:
			if attempt < s.cfg.Reload.MaxRetries {
				continue
			}
			Logger().Warn("reload retries exhausted", zap.Int("max_retries", s.cfg.Reload.MaxRetries))
		case ReloadRevert:
			if !reverted {
				reverted = true
				next = prev
				continue
			}
		}

		s.mu.Lock()
		err = multierr.Append(err, s.shutdown(ctx))
		s.mu.Unlock()
		return err
	}
}

// swap installs a new script domain, then constructs bridged entities and
// scripts again with s.mu released so their constructors and spawn hooks
// may call back into the system.
func (s *System) swap(ctx context.Context, script engine.Domain, module *class.Module, sources []engine.Source) error {
	s.mu.Lock()
	oldScript, oldModule := s.script, s.module

	s.script = script
	s.module = module
	s.sources = slices.Clone(sources)
	if i := slices.Index(s.domains, oldScript); i >= 0 {
		s.domains[i] = script
	}
	if s.active == oldScript {
		s.active = script
	}
	bridge := s.bridge
	s.mu.Unlock()

	if bridge != nil {
		if err := bridge.Rebind(ctx, module); err != nil {
			Logger().Warn("entities dropped on reload", zap.Error(err))
		}
	}
	s.reinstantiate(ctx, module)

	return multierr.Append(oldModule.Close(ctx), oldScript.Close(ctx))
}
