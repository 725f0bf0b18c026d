package notify

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gregdel/pushover"
	"github.com/sirupsen/logrus"
)

// Environment variables which configure the pushover credentials.
const (
	EnvToken      = "TWITMOVER_PUSHOVER_TOKEN"
	EnvRecipients = "TWITMOVER_PUSHOVER_RECIPIENTS"
)

// Pushover sends a message for each moved file.
type Pushover struct {
	app        *pushover.Pushover
	recipients []*pushover.Recipient

	log logrus.FieldLogger
}

// New returns a Pushover notifier for the comma separated list of
// recipients. It returns nil if token or recipients are empty.
func New(logger logrus.FieldLogger, token, recipients string) *Pushover {
	log := logger.WithField("component", "pushover")

	if token == "" {
		log.Debug("no pushover token found, notifications disabled")

		return nil
	}

	p := &Pushover{
		app: pushover.New(token),
		log: log,
	}

	for _, r := range strings.Split(recipients, ",") {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}

		p.recipients = append(p.recipients, pushover.NewRecipient(r))
	}

	if len(p.recipients) == 0 {
		log.Warn("no recipients found, notifications disabled")

		return nil
	}

	return p
}

// FromEnv returns a notifier configured from the environment, token and
// recipients override the environment when set.
func FromEnv(logger logrus.FieldLogger, token, recipients string) *Pushover {
	if token == "" {
		token = os.Getenv(EnvToken)
	}

	if recipients == "" {
		recipients = os.Getenv(EnvRecipients)
	}

	return New(logger, token, recipients)
}

// Message builds the notification text for a file moved from src to dst.
func Message(src, dst string, size int64) *pushover.Message {
	text := fmt.Sprintf("Moved %v to %v (%v)",
		filepath.Base(src), filepath.Join(filepath.Base(filepath.Dir(dst)), filepath.Base(dst)),
		humanize.Bytes(uint64(size)))

	return pushover.NewMessageWithTitle(text, "twitmover: file moved")
}

// FileMoved notifies all recipients about a moved file. Errors are logged.
func (p *Pushover) FileMoved(src, dst string) {
	var size int64
	if fi, err := os.Stat(dst); err == nil {
		size = fi.Size()
	}

	message := Message(src, dst, size)

	for _, r := range p.recipients {
		response, err := p.app.SendMessage(message, r)
		if err != nil {
			p.log.WithField("filename", filepath.Base(src)).Warnf("unable to send message: %v", err)

			continue
		}

		p.log.Debugf("response from pushover: %v", response)
	}
}
