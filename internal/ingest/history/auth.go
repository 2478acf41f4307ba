package history

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
)

// ErrSignupNotSupported indicates the phone number has no account.
var ErrSignupNotSupported = errors.New("signup not supported")

// terminalAuth answers the login prompts from configuration, asking on the
// terminal for whatever is missing.
type terminalAuth struct {
	phone    string
	password string
	in       *bufio.Reader
	out      io.Writer
	logger   *zerolog.Logger
}

var _ auth.UserAuthenticator = (*terminalAuth)(nil)

func (a *terminalAuth) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label)

	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}

	return strings.TrimSpace(line), nil
}

func (a *terminalAuth) Phone(_ context.Context) (string, error) {
	phone := a.phone
	if phone == "" {
		var err error

		if phone, err = a.prompt("Enter phone: "); err != nil {
			return "", err
		}
	}

	phone = sanitizePhone(phone)
	a.logger.Info().Str("phone", maskPhone(phone)).Msg("using phone number")

	if len(phone) < 10 {
		a.logger.Warn().Int("length", len(phone)).Msg("phone number seems too short, include the country code (e.g. +1...)")
	}

	return phone, nil
}

func (a *terminalAuth) Password(_ context.Context) (string, error) {
	if a.password != "" {
		return a.password, nil
	}

	return a.prompt("Enter 2FA password: ")
}

func (a *terminalAuth) Code(_ context.Context, _ *tg.AuthSentCode) (string, error) {
	return a.prompt("Enter code: ")
}

func (a *terminalAuth) AcceptTermsOfService(_ context.Context, _ tg.HelpTermsOfService) error {
	return nil
}

func (a *terminalAuth) SignUp(_ context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, ErrSignupNotSupported
}

func sanitizePhone(phone string) string {
	var sb strings.Builder

	phone = strings.TrimSpace(phone)

	if strings.HasPrefix(phone, "+") {
		sb.WriteByte('+')

		phone = phone[1:]
	}

	for _, char := range phone {
		if char >= '0' && char <= '9' {
			sb.WriteRune(char)
		}
	}

	return sb.String()
}

func maskPhone(phone string) string {
	if len(phone) < 7 {
		return "****"
	}

	return phone[:3] + "****" + phone[len(phone)-2:]
}
