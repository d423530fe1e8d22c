package report

import (
	"fmt"
	"path/filepath"
)

// Layout names the files of one run's reports.
type Layout struct {
	Dir    string // report root
	Subdir string // per-strategy directory under Dir
	Short  string // strategy short name in file names ("ebl" or "awl")
	Tag    string // free-form suffix
}

// ClientsPath is the per-client history file.
func (l Layout) ClientsPath() string {
	return filepath.Join(l.Dir, l.Subdir, fmt.Sprintf("clients_%s_history_%s.csv", l.Short, l.Tag))
}

// ServerPath is the per-round server history file.
func (l Layout) ServerPath() string {
	return filepath.Join(l.Dir, l.Subdir, fmt.Sprintf("server_%s_history_%s.csv", l.Short, l.Tag))
}

// DistributionPath is the training label distribution file.
func (l Layout) DistributionPath() string {
	return filepath.Join(l.Dir, fmt.Sprintf("data_distribution_%s.csv", l.Tag))
}

// HeaderPath is the run header file.
func (l Layout) HeaderPath() string {
	return filepath.Join(l.Dir, fmt.Sprintf("run_%s_%s.yaml", l.Short, l.Tag))
}

// LogPath is the run log file used when not logging to the terminal.
func (l Layout) LogPath() string {
	return filepath.Join(l.Dir, fmt.Sprintf("%s_%s.log", l.Short, l.Tag))
}

// Export writes the distribution, client and server tables of rt.
func Export(l Layout, rt *RunTrace) error {
	if err := rt.DistributionTable().WriteCSVFile(l.DistributionPath()); err != nil {
		return fmt.Errorf("exporting data distribution: %w", err)
	}
	if err := rt.ClientTable().WriteCSVFile(l.ClientsPath()); err != nil {
		return fmt.Errorf("exporting client history: %w", err)
	}
	if err := rt.ServerTable().WriteCSVFile(l.ServerPath()); err != nil {
		return fmt.Errorf("exporting server history: %w", err)
	}
	return nil
}
