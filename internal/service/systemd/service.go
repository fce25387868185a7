// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package systemd registers installed unit files with the local systemd.
package systemd

import (
	"context"
	"os"
	"path"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/coreos/go-systemd/v22/util"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("radius.service.systemd")

// searchPath holds the unit directories systemd loads units from without
// them being linked.
var searchPath = set.NewStrings(
	"/etc/systemd/system",
	"/lib/systemd/system",
	"/usr/lib/systemd/system",
)

// DBusAPI is the subset of the systemd dbus connection used here.
type DBusAPI interface {
	Close()
	LinkUnitFiles(files []string, runtime bool, force bool) ([]dbus.LinkUnitFileChange, error)
	Reload() error
	EnableUnitFiles(files []string, runtime bool, force bool) (bool, []dbus.EnableUnitFileChange, error)
}

// DBusAPIFactory opens a dbus connection.
type DBusAPIFactory = func() (DBusAPI, error)

// NewDBusAPI connects to the system bus.
var NewDBusAPI = func() (DBusAPI, error) {
	return dbus.New()
}

// IsRunning returns whether or not systemd is the local init system.
func IsRunning() bool {
	return util.IsRunningSystemd()
}

// Service is a unit file that has been copied into DirName.
type Service struct {
	Name     string
	ConfName string
	DirName  string

	newDBus   DBusAPIFactory
	isRunning func() bool
}

// NewServiceWithDefaults returns a service talking to the system bus.
func NewServiceWithDefaults(name, dirName string) *Service {
	return NewService(name, dirName, NewDBusAPI, IsRunning)
}

// NewService returns a reference to the unit file name.service in dirName.
func NewService(name, dirName string, newDBus DBusAPIFactory, isRunning func() bool) *Service {
	return &Service{
		Name:      name,
		ConfName:  name + ".service",
		DirName:   dirName,
		newDBus:   newDBus,
		isRunning: isRunning,
	}
}

func (s *Service) errorf(err error, msg string, args ...interface{}) error {
	msg += " for service %q"
	args = append(args, s.Name)
	if err == nil {
		err = errors.Errorf(msg, args...)
	} else {
		err = errors.Annotatef(err, msg, args...)
	}
	logger.Errorf("%v", err)
	return err
}

// UnitPath is where the unit file is expected.
func (s *Service) UnitPath() string {
	return path.Join(s.DirName, s.ConfName)
}

// Register reloads the systemd configuration and enables the unit. Units
// outside the systemd search path are linked first. Nothing is done when
// systemd is not the running init system; the SysV init script covers
// that case.
func (s *Service) Register(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}
	filename := s.UnitPath()
	if _, err := os.Stat(filename); err != nil {
		return s.errorf(err, "unit file missing")
	}
	if !s.isRunning() {
		logger.Infof("systemd not running, not enabling %s", s.ConfName)
		return nil
	}

	conn, err := s.newDBus()
	if err != nil {
		return s.errorf(err, "connecting to dbus")
	}
	defer conn.Close()

	const runtime, force = false, true
	unit := s.ConfName
	if !searchPath.Contains(path.Clean(s.DirName)) {
		if _, err := conn.LinkUnitFiles([]string{filename}, runtime, force); err != nil {
			return s.errorf(err, "dbus link request failed")
		}
		unit = filename
	}
	if err := conn.Reload(); err != nil {
		return s.errorf(err, "dbus daemon reload request failed")
	}
	if _, _, err := conn.EnableUnitFiles([]string{unit}, runtime, force); err != nil {
		return s.errorf(err, "dbus enable request failed")
	}
	logger.Infof("enabled %s", s.ConfName)
	return nil
}
