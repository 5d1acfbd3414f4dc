package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nats-io/nats.go"

	"github.com/MrWong99/voxclone/internal/resilience"
)

// DirWritable checks that dir exists, is a directory, and accepts new files.
func DirWritable(name, dir string) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
		f, err := os.CreateTemp(dir, ".readyz-*")
		if err != nil {
			return err
		}
		f.Close()
		return os.Remove(filepath.Clean(f.Name()))
	}}
}

// BreakersClosed fails while every breaker is open, meaning no backend in
// the group can currently take a call. A single healthy backend is enough.
func BreakersClosed(name string, breakers ...*resilience.CircuitBreaker) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if len(breakers) == 0 {
			return nil
		}
		var errs []error
		for _, cb := range breakers {
			if cb.State() != resilience.StateOpen {
				return nil
			}
			errs = append(errs, fmt.Errorf("%s: %w", cb.Name(), resilience.ErrCircuitOpen))
		}
		return errors.Join(errs...)
	}}
}

// NATSStatus is the subset of *nats.Conn used by [NATSConnected].
type NATSStatus interface {
	Status() nats.Status
}

// NATSConnected fails unless the connection is in the CONNECTED state.
func NATSConnected(name string, conn NATSStatus) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if conn == nil {
			return errors.New("no connection")
		}
		if s := conn.Status(); s != nats.CONNECTED {
			return fmt.Errorf("connection is %s", s)
		}
		return nil
	}}
}
