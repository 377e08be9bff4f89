package node

import (
	"context"
	"fmt"
	"time"

	"github.com/jbweber/virtdriver/api/v1alpha1"
	"github.com/jbweber/virtdriver/internal/keys"
)

// SendKeys types a symbolic key string on the node's console. Each stroke
// is one key event and is retried on its own; a wait token pauses for the
// configured key pause and other tokens are skipped.
func (m *Manager) SendKeys(ctx context.Context, node *v1alpha1.Node, s string) error {
	if _, err := identity(node); err != nil {
		return err
	}
	strokes, err := m.keys.Translate(s)
	if err != nil {
		return fmt.Errorf("failed to translate keys: %w", err)
	}

	dom, err := m.lookup(ctx, node)
	if err != nil {
		return err
	}
	log := m.log.WithField("node", node.Name)

	for i, stroke := range strokes {
		if stroke.IsToken() {
			if stroke.Token != keys.TokenWait {
				log.WithField("token", stroke.Token).Debug("Skipping unknown key token")
				continue
			}
			if err := sleep(ctx, m.pause); err != nil {
				return fmt.Errorf("key injection interrupted at stroke %d: %w", i, err)
			}
			continue
		}

		codes := stroke.Keycodes
		err := m.policy.Do(ctx, "domain.send_key", func(context.Context) error {
			return m.client.DomainSendKey(dom, codes)
		})
		if err != nil {
			return fmt.Errorf("failed to send stroke %d to node %s: %w", i, node.Name, err)
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
