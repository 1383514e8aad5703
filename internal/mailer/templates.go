package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/merchforge/apiserver/types"
)

var (
	resetTemplate = template.Must(template.New("reset").Parse(`<h1>Password Reset</h1>
<p>You are receiving this because you (or someone else) requested a password reset for your account.</p>
<p>Open the link below to choose a new password. The link expires in {{.ExpiresIn}}.</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
<p>If you did not request this, ignore this email and your password will remain unchanged.</p>
`))

	confirmationTemplate = template.Must(template.New("confirmation").Funcs(template.FuncMap{
		"upper": strings.ToUpper,
	}).Parse(`<h1>Order Confirmation</h1>
<p>Thank you for your order!</p>
<p>Order Number: {{.OrderNumber}}</p>
<h2>Order Details:</h2>
<p>Name: {{.FullName}}</p>
<p>Total Amount: ${{printf "%.2f" .TotalPrice}}</p>
<p>Delivery Method: {{.DeliveryMethod}}</p>
{{if .ShowAddress}}<p>Delivery Address: {{.Address}}</p>
{{end}}<h3>Size Details:</h3>
<ul>
{{range .Lines}}<li>{{upper .Size}}: {{.Quantity}}</li>
{{end}}</ul>
<p>We'll process your order soon!</p>
`))

	statusTemplate = template.Must(template.New("status").Parse(`<h1>Order Update</h1>
<p>Hi {{.FullName}},</p>
<p>The status of your order {{.OrderNumber}} is now <strong>{{.Status}}</strong>.</p>
`))
)

// PasswordReset renders the email carrying a password-reset link.
func PasswordReset(to, link, expiresIn string) (Message, error) {
	var buf bytes.Buffer
	err := resetTemplate.Execute(&buf, struct {
		Link      string
		ExpiresIn string
	}{link, expiresIn})
	if err != nil {
		return Message{}, fmt.Errorf("render reset email: %w", err)
	}
	return Message{To: to, Subject: "Password Reset", HTML: buf.String()}, nil
}

// OrderConfirmation renders the email sent after an order is placed.
func OrderConfirmation(order types.Order) (Message, error) {
	var buf bytes.Buffer
	err := confirmationTemplate.Execute(&buf, struct {
		OrderNumber    string
		FullName       string
		TotalPrice     float64
		DeliveryMethod types.DeliveryMethod
		ShowAddress    bool
		Address        string
		Lines          []types.SizeLine
	}{
		OrderNumber:    order.OrderNumber,
		FullName:       order.FullName,
		TotalPrice:     order.TotalPrice,
		DeliveryMethod: order.DeliveryMethod,
		ShowAddress:    order.DeliveryMethod == types.DeliveryMethodDelivery,
		Address:        order.Address,
		Lines:          order.SizeData.Lines(),
	})
	if err != nil {
		return Message{}, fmt.Errorf("render confirmation email: %w", err)
	}
	return Message{
		To:      order.Email,
		Subject: "Order Confirmation - " + order.OrderNumber,
		HTML:    buf.String(),
	}, nil
}

// StatusUpdate renders the email sent when an admin changes an order's status.
func StatusUpdate(event types.OrderEvent) (Message, error) {
	var buf bytes.Buffer
	if err := statusTemplate.Execute(&buf, event); err != nil {
		return Message{}, fmt.Errorf("render status email: %w", err)
	}
	return Message{
		To:      event.Email,
		Subject: fmt.Sprintf("Order %s is %s", event.OrderNumber, event.Status),
		HTML:    buf.String(),
	}, nil
}
