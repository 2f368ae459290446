package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lewtec/scriptorium/internal/geometry"
	"github.com/lewtec/scriptorium/internal/tools"
	"github.com/lewtec/scriptorium/internal/viewer"
)

func parseRect(args []string) (geometry.Rect, error) {
	if len(args) == 1 {
		return geometry.ParseFragment(args[0])
	}
	if len(args) != 4 {
		return geometry.Rect{}, fmt.Errorf("expected x y w h or a xywh= fragment")
	}
	var v [4]int
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil || n < 0 {
			return geometry.Rect{}, fmt.Errorf("invalid coordinate %q", a)
		}
		v[i] = n
	}
	return geometry.Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}

// saveIfRequested saves within the same session when --save is set.
func saveIfRequested(cmd *cobra.Command, s *session) error {
	if save, _ := cmd.Flags().GetBool("save"); !save {
		return nil
	}
	return reportSave(cmd, s)
}

func reportSave(cmd *cobra.Command, s *session) error {
	out := cmd.OutOrStdout()
	handled, err := s.viewer.HandleKey(cmd.Context(), "ctrl+s")
	if !handled {
		fmt.Fprintln(out, "nothing to save")
		return nil
	}
	var saveErr *viewer.SaveError
	if errors.As(err, &saveErr) {
		for _, f := range saveErr.Failed {
			fmt.Fprintf(out, "failed: %s %s: %s\n", f.Op, f.ID, f.Err)
		}
	}
	if err != nil {
		return err
	}
	printStatus(out, s)
	return nil
}

var loadCmd = &cobra.Command{
	Use:   "load image",
	Short: "Fetch an image's annotations and reconcile them with the local cache",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		printStatus(cmd.OutOrStdout(), s)
		return nil
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status image",
	Short: "Show the working set and unsaved changes of an image",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		printStatus(cmd.OutOrStdout(), s)
		return nil
	}),
}

var drawCmd = &cobra.Command{
	Use:   "draw image (x y w h | xywh=pixel:x,y,w,h)",
	Short: "Draw a rectangle, in image pixels from the top-left corner",
	Args:  cobra.RangeArgs(2, 5),
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		r, err := parseRect(args)
		if err != nil {
			return err
		}
		body, _ := cmd.Flags().GetString("body")
		if err := s.viewer.SetMode(tools.Draw); err != nil {
			return err
		}
		shape, err := s.layer.Draw(geometry.ToOverlay(r, s.viewer.Height()), body)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", shape.ID, r.Fragment())
		return saveIfRequested(cmd, s)
	}),
}

var editCmd = &cobra.Command{
	Use:   "edit image id (x y w h | xywh=pixel:x,y,w,h)",
	Short: "Move or resize an annotation",
	Args:  cobra.RangeArgs(3, 6),
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		r, err := parseRect(args[1:])
		if err != nil {
			return err
		}
		if _, err := s.layer.Edit(args[0], geometry.ToOverlay(r, s.viewer.Height())); err != nil {
			return err
		}
		return saveIfRequested(cmd, s)
	}),
}

var deleteCmd = &cobra.Command{
	Use:   "delete image id...",
	Short: "Delete annotations with the delete tool",
	Args:  cobra.MinimumNArgs(2),
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		if err := s.viewer.SetMode(tools.Delete); err != nil {
			return err
		}
		var errs []error
		for _, id := range args {
			errs = append(errs, s.layer.Select(id))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "unsaved: %d\n", s.viewer.Unsaved())
		if err := errors.Join(errs...); err != nil {
			return err
		}
		return saveIfRequested(cmd, s)
	}),
}

var visibleCmd = &cobra.Command{
	Use:       "visible image (on|off)",
	Short:     "Show or hide an image's annotations",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"on", "off"},
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		switch args[0] {
		case "on", "true":
			return s.viewer.SetVisible(true)
		case "off", "false":
			return s.viewer.SetVisible(false)
		}
		return fmt.Errorf("expected on or off, got %q", args[0])
	}),
}

var saveCmd = &cobra.Command{
	Use:   "save image",
	Short: "Commit the local changes of an image to the backend",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		return reportSave(cmd, s)
	}),
}

func init() {
	drawCmd.Flags().StringP("body", "b", "", "Text of the annotation")
	for _, c := range []*cobra.Command{drawCmd, editCmd, deleteCmd} {
		c.Flags().Bool("save", false, "Save to the backend right away")
	}
	rootCmd.AddCommand(loadCmd, statusCmd, drawCmd, editCmd, deleteCmd, visibleCmd, saveCmd)
}
