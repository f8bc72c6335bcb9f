package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and keep the session for later commands",
		RunE:  runLogin,
	}
	f := cmd.Flags()
	commonFlags(f)
	f.StringP("username", "u", "", "Account name")
	f.StringP("password", "p", "", "Password (read from stdin when empty)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	password := e.v.GetString("password")
	if password == "" {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	user, err := e.client.Login(cmd.Context(), e.v.GetString("username"), password)
	if err != nil {
		return err
	}
	if err := e.db.SetLastServer(e.client.BaseURL()); err != nil {
		slog.Warn("failed to remember server", "error", err)
	}
	slog.Info("logged in", "server", e.client.BaseURL(), "user", user.Username, "role", user.Role)
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", displayName(user.Name, user.Username), user.Role)
	return nil
}

func logoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd)
			if err != nil {
				return err
			}
			e.forget = true
			e.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "Logged out of %s\n", e.client.BaseURL())
			return nil
		},
	}
	commonFlags(cmd.Flags())
	return cmd
}

func whoamiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the account of the saved session",
		RunE:  runWhoami,
	}
	commonFlags(cmd.Flags())
	return cmd
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	info, err := e.client.CheckSession(cmd.Context())
	if err != nil {
		return err
	}
	if !info.LoggedIn || info.User == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) on %s\n", displayName(info.User.Name, info.User.Username), info.User.Role, e.client.BaseURL())
	return nil
}

func competitionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "competitions",
		Short: "List the competitions open to the student",
		RunE:  runCompetitions,
	}
	commonFlags(cmd.Flags())
	return cmd
}

func runCompetitions(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	list, err := e.client.ListCompetitions(cmd.Context())
	if err != nil {
		return fmt.Errorf("list competitions: %w", err)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATE\tSTART\tSTATIONS\tJOINABLE")
	for _, c := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d × %d min\t%v\n",
			c.ID, c.Name, c.State, c.StartTime.Local().Format("2006-01-02 15:04"),
			c.StationsPerSession, c.TimePerStation, c.CanJoin)
	}
	return w.Flush()
}

func displayName(name, username string) string {
	if name != "" {
		return name
	}
	return username
}
