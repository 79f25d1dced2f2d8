package mailer

import (
	"fmt"
	"html"
	"time"
)

// OTPMessage renders the signup verification email.
func OTPMessage(to, name, code string, ttl time.Duration) Message {
	body := fmt.Sprintf(`<html><body style="font-family: Arial, sans-serif;">
<p>Hi %s,</p>
<p>Your verification code is:</p>
<p style="font-size: 28px; font-weight: bold; letter-spacing: 6px;">%s</p>
<p>The code expires in %d minutes. If you did not create an account you can ignore this email.</p>
</body></html>`, html.EscapeString(name), html.EscapeString(code), int(ttl.Minutes()))
	return Message{
		To:      to,
		Subject: "Verify your email",
		HTML:    body,
	}
}
