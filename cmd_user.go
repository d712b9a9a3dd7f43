package main

import (
	"errors"
	"fmt"
	"strconv"

	"git.0xdad.com/tblyler/mymed/auth"
	"git.0xdad.com/tblyler/mymed/config"
	"git.0xdad.com/tblyler/mymed/db"
)

func (a *app) auth() (*auth.Local, error) {
	secret, err := a.config.JWTSecret()
	if err != nil {
		return nil, err
	}

	return auth.NewLocal(a.badger, []byte(secret)), nil
}

// lookupUser resolves the user a command acts for: the session of the
// configured token, or an email and password prompt without one
func (a *app) lookupUser() (*db.User, error) {
	provider, err := a.auth()
	if err != nil {
		return nil, err
	}

	session, err := a.session(provider)
	if err != nil {
		return nil, err
	}

	return &session.User, nil
}

func (a *app) session(provider *auth.Local) (*auth.Session, error) {
	if token := a.config.SessionToken(); token != "" {
		session, err := provider.Resume(token)
		if err != nil {
			return nil, fmt.Errorf("failed to resume session, run mymed user login again: %w", err)
		}

		return session, nil
	}

	email, err := a.prompt.required("email")
	if err != nil {
		return nil, err
	}

	password, err := a.prompt.password("password")
	if err != nil {
		return nil, err
	}

	return provider.Login(email, password)
}

func (a *app) user() error {
	if len(a.args) < 1 {
		return errors.New("must supply an argument to the user command")
	}

	switch a.args[0] {
	case "add":
		provider, err := a.auth()
		if err != nil {
			return err
		}

		username, err := a.prompt.required("username")
		if err != nil {
			return err
		}

		email, err := a.prompt.required("email")
		if err != nil {
			return err
		}

		password, err := a.prompt.password("password")
		if err != nil {
			return err
		}

		deviceToken, err := a.prompt.line("pushover device token (optional)")
		if err != nil {
			return err
		}

		chat, err := a.prompt.line("telegram chat id (optional)")
		if err != nil {
			return err
		}

		var chatID int64
		if chat != "" {
			chatID, err = strconv.ParseInt(chat, 10, 64)
			if err != nil {
				return fmt.Errorf("telegram chat id %q is not a number", chat)
			}
		}

		session, err := provider.Register(username, email, password)
		if err != nil {
			return fmt.Errorf("failed to insert username %s: %w", username, err)
		}

		user := session.User
		if deviceToken != "" {
			user.PushoverDeviceTokens["default"] = deviceToken
		}
		user.TelegramChatID = chatID

		if err := a.badger.UpdateUser(&user); err != nil {
			return err
		}

		log(successStyle.Render("created user id"), user.ID)

	case "get":
		var user *db.User
		var err error
		if name := a.arg(1); name != "" {
			user, err = a.badger.GetUser(name)
			if err != nil {
				return fmt.Errorf("failed to lookup username %s: %w", name, err)
			}
		} else if user, err = a.lookupUser(); err != nil {
			return err
		}

		printUser(user)

	case "list":
		users, err := a.badger.ListUsers()
		if err != nil {
			return err
		}

		for _, user := range users {
			printUser(user)
		}

	case "login":
		provider, err := a.auth()
		if err != nil {
			return err
		}

		email, err := a.prompt.required("email")
		if err != nil {
			return err
		}

		password, err := a.prompt.password("password")
		if err != nil {
			return err
		}

		session, err := provider.Login(email, password)
		if err != nil {
			return err
		}

		log(successStyle.Render("signed in as " + session.User.Name))
		log(dimStyle.Render("token expires " + session.ExpiresAt.Format("2006-01-02 15:04")))
		log(dimStyle.Render("later commands act as this user with"))
		log("export " + config.SessionTokenEnv + "=" + session.Token)

	default:
		return fmt.Errorf("unknown user command %s", a.args[0])
	}

	return nil
}

func printUser(user *db.User) {
	devices := make([]string, 0, len(user.PushoverDeviceTokens))
	for name := range user.PushoverDeviceTokens {
		devices = append(devices, name)
	}

	log(headerStyle.Render(user.Name), user.Email, dimStyle.Render(user.ID.String()))

	if len(devices) > 0 {
		log("    pushover devices:", devices)
	}

	if user.TelegramChatID != 0 {
		log("    telegram chat:", user.TelegramChatID)
	}
}
