// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// The radius-setup command installs the Gluu RADIUS server on a Gluu host.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo"
	"github.com/juju/lumberjack/v2"

	"github.com/gluu/radius-setup/internal/config"
	"github.com/gluu/radius-setup/internal/directory"
	"github.com/gluu/radius-setup/internal/keystore"
	"github.com/gluu/radius-setup/internal/provision"
	"github.com/gluu/radius-setup/internal/radius"
	"github.com/gluu/radius-setup/internal/service/systemd"
)

var logger = loggo.GetLogger("radius.setup")

const (
	phaseInstall = "install"
	phaseServer  = "server"
	phaseAll     = "all"
)

func setupLogging(logLevel loggo.Level, w io.Writer, logFile string) error {
	if logFile != "" {
		w = io.MultiWriter(w, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10,
			MaxBackups: 2,
			Compress:   true,
		})
	}
	writer := loggo.NewSimpleWriter(w, logFormatter)
	if _, err := loggo.ReplaceDefaultWriter(writer); err != nil {
		return errors.Trace(err)
	}
	return loggo.ConfigureLoggers(fmt.Sprintf("<root>=%s", logLevel.String()))
}

func logFormatter(entry loggo.Entry) string {
	ts := entry.Timestamp.In(time.UTC).Format("2006-01-02 15:04:05")
	return fmt.Sprintf("%s %s %s %s", ts, entry.Level, entry.Module, entry.Message)
}

type commandLineArgs struct {
	configPath string
	statePath  string
	phase      string
	logFile    string
	logLevel   loggo.Level
}

func commandLine(args []string, stderr io.Writer) (commandLineArgs, error) {
	flags := gnuflag.NewFlagSet("radius-setup", gnuflag.ContinueOnError)
	flags.SetOutput(stderr)
	var (
		a           commandLineArgs
		rawLogLevel string
	)
	flags.StringVar(&a.configPath, "config", "/etc/gluu/conf/radius-setup.yaml",
		"installer configuration file")
	flags.StringVar(&a.statePath, "state", "/etc/gluu/conf/radius-setup.state",
		"where bootstrapped identities are kept between runs")
	flags.StringVar(&a.phase, "phase", phaseAll,
		"what to install: install (configuration), server (staged server) or all")
	flags.StringVar(&a.logFile, "log-file", "",
		"also write the log to this file")
	flags.StringVar(&rawLogLevel, "log-level", "INFO",
		"log level to use (TRACE/DEBUG/INFO/etc)")

	if err := flags.Parse(true, args); err != nil {
		return a, errors.Trace(err)
	}
	if extra := flags.Args(); len(extra) > 0 {
		return a, errors.Errorf("unrecognized args: %q", extra)
	}
	switch a.phase {
	case phaseInstall, phaseServer, phaseAll:
	default:
		return a, errors.NotValidf("phase %q", a.phase)
	}
	level, ok := loggo.ParseLevel(rawLogLevel)
	if !ok {
		return a, errors.NotValidf("log level %q", rawLogLevel)
	}
	a.logLevel = level
	return a, nil
}

func newGenerator(cfg *config.Config) keystore.Generator {
	if cfg.KeyGenerator() == config.KeyGeneratorCommand {
		return &keystore.Command{
			Java: cfg.Java(),
			Jar:  cfg.KeyGeneratorJar(),
		}
	}
	return &keystore.Native{}
}

func run(ctx context.Context, a commandLineArgs) (err error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return errors.Trace(err)
	}
	st, err := radius.LoadState(a.statePath)
	if err != nil {
		return errors.Trace(err)
	}
	if st.Salt == "" {
		if st.Salt, err = cfg.EncodeSalt(); err != nil {
			return errors.Trace(err)
		}
	}
	session, err := radius.NewSession(st)
	if err != nil {
		return errors.Trace(err)
	}
	// Whatever identity was bootstrapped is kept, so a rerun converges on it.
	defer func() {
		if saveErr := session.Save(a.statePath); saveErr != nil {
			logger.Errorf("%v", saveErr)
			if err == nil {
				err = saveErr
			}
		}
	}()

	store, err := directory.Dial(directory.LDAPConfig{
		URL:                cfg.LDAPURL(),
		BindDN:             cfg.LDAPBindDN(),
		BindPassword:       cfg.LDAPBindPassword(),
		InsecureSkipVerify: cfg.LDAPInsecureSkipVerify(),
	})
	if err != nil {
		return errors.Trace(err)
	}
	defer store.Close()

	bootstrapper, err := radius.NewBootstrapper(radius.BootstrapperConfig{
		Identities:   store,
		Generator:    newGenerator(cfg),
		KeystorePath: cfg.KeystorePath(),
		KeyPolicy:    cfg.KeyPolicy(),
	})
	if err != nil {
		return errors.Trace(err)
	}
	installer, err := radius.NewInstaller(radius.InstallerConfig{
		Config:       cfg,
		Session:      session,
		Bootstrapper: bootstrapper,
		Store:        store,
		Templates:    radius.Templates(),
		Provisioner:  provision.OS{},
		Service:      systemd.NewServiceWithDefaults(radius.ServiceName, cfg.SystemdDir()),
	})
	if err != nil {
		return errors.Trace(err)
	}

	if a.phase == phaseInstall || a.phase == phaseAll {
		logger.Infof("installing RADIUS configuration")
		if err := installer.CreateFolders(); err != nil {
			return errors.Trace(err)
		}
		if err := installer.Install(ctx); err != nil {
			return errors.Trace(err)
		}
	}
	if a.phase == phaseServer || a.phase == phaseAll {
		logger.Infof("installing RADIUS server")
		if err := installer.InstallServer(ctx); err != nil {
			return errors.Trace(err)
		}
	}
	logger.Infof("RADIUS client %s installed", session.ClientID)
	return nil
}

func main() {
	a, err := commandLine(os.Args[1:], os.Stderr)
	if errors.Is(err, gnuflag.ErrHelp) {
		os.Exit(0)
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "radius-setup: %v\n", err)
		os.Exit(2)
	}
	if err := setupLogging(a.logLevel, os.Stderr, a.logFile); err != nil {
		fmt.Fprintf(os.Stderr, "radius-setup: setting up logging: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, a); err != nil {
		logger.Errorf("%v", err)
		logger.Debugf("%s", errors.ErrorStack(err))
		stop()
		os.Exit(1)
	}
}
