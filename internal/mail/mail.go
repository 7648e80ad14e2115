// Package mail delivers order confirmation emails over SMTP.
package mail

import (
	"bytes"
	"context"
	"html/template"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/xenking/restaurant-orders/internal/domain/order"
)

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// OrderURL is rendered into the email with the order ID appended.
	OrderURL string
}

// Enabled reports whether enough settings are present to send mail.
func (c Config) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// sender is the subset of the go-mail client used by Notifier.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// Notifier queues confirmation emails and sends them from a background loop.
// OrderConfirmed never blocks the caller; when the queue is full the message
// is dropped and logged.
type Notifier struct {
	cfg    Config
	client sender
	queue  chan *order.Order
	lg     *zap.Logger
}

var _ order.Notifier = (*Notifier)(nil)

// New creates a Notifier that sends through the SMTP server in cfg.
func New(cfg Config, lg *zap.Logger) (*Notifier, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(10 * time.Second),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	c, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create smtp client")
	}
	return newNotifier(cfg, c, lg), nil
}

func newNotifier(cfg Config, client sender, lg *zap.Logger) *Notifier {
	return &Notifier{
		cfg:    cfg,
		client: client,
		queue:  make(chan *order.Order, 64),
		lg:     lg.Named("mail"),
	}
}

// OrderConfirmed enqueues a confirmation email for o.
func (n *Notifier) OrderConfirmed(_ context.Context, o *order.Order) {
	select {
	case n.queue <- o:
	default:
		n.lg.Warn("Mail queue full, dropping confirmation", zap.String("order_id", o.ID))
	}
}

// Run sends queued emails until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case o := <-n.queue:
			if err := n.send(ctx, o); err != nil {
				n.lg.Error("Send confirmation",
					zap.String("order_id", o.ID),
					zap.Error(err),
				)
				continue
			}
			zctx.From(ctx).Debug("Confirmation sent", zap.String("order_id", o.ID))
		}
	}
}

func (n *Notifier) send(ctx context.Context, o *order.Order) error {
	msg, err := n.message(o)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		return errors.Wrap(err, "send")
	}
	return nil
}

func (n *Notifier) render(o *order.Order) (string, error) {
	link := ""
	if n.cfg.OrderURL != "" {
		link = n.cfg.OrderURL + o.ID
	}
	var body bytes.Buffer
	if err := confirmationTemplate.Execute(&body, confirmationData{Order: o, Link: link}); err != nil {
		return "", errors.Wrap(err, "render")
	}
	return body.String(), nil
}

func (n *Notifier) message(o *order.Order) (*gomail.Msg, error) {
	body, err := n.render(o)
	if err != nil {
		return nil, err
	}

	m := gomail.NewMsg()
	if err := m.From(n.cfg.From); err != nil {
		return nil, errors.Wrap(err, "from")
	}
	if err := m.To(o.Customer.Email); err != nil {
		return nil, errors.Wrap(err, "to")
	}
	m.Subject("Your order " + shortID(o.ID) + " is confirmed")
	m.SetBodyString(gomail.TypeTextHTML, body)
	return m, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type confirmationData struct {
	Order *order.Order
	Link  string
}

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`<!doctype html>
<html><body>
<p>Hi {{.Order.Customer.FullName}},</p>
<p>Your order has been confirmed and will be delivered to {{.Order.Customer.DeliveryAddress}}.</p>
<table>
{{range .Order.Lines}}<tr><td>{{.Quantity}} x {{.Name}}</td><td>{{.PriceAtPurchase.StringFixed 2}}</td></tr>
{{end}}<tr><td><strong>Total</strong></td><td><strong>{{.Order.Total.StringFixed 2}}</strong></td></tr>
</table>
<p>Payment: {{.Order.PaymentMethod}}</p>
{{if .Link}}<p><a href="{{.Link}}">View your order</a></p>{{end}}
</body></html>
`))
