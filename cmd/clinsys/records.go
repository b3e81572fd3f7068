package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/clinsys/clinsys/internal/domain/appointment"
	"github.com/clinsys/clinsys/internal/domain/evolution"
	"github.com/clinsys/clinsys/internal/domain/patient"
	"github.com/clinsys/clinsys/internal/platform/form"
	"github.com/clinsys/clinsys/internal/platform/render"
	"github.com/clinsys/clinsys/pkg/pagination"
)

// listFlags is the page cursor of a list command. Pages are 1-based on the
// command line.
type listFlags struct {
	page int
	size int
	sort string
}

func (f *listFlags) bind(cmd *cobra.Command, defaultSort string, options []string) {
	cmd.Flags().IntVar(&f.page, "page", 1, "page number")
	cmd.Flags().IntVar(&f.size, "size", 0, "rows per page (defaults to PAGE_SIZE)")
	cmd.Flags().StringVar(&f.sort, "sort", defaultSort, "sort order: "+strings.Join(options, ", "))
}

func (f listFlags) params(a *app) pagination.Params {
	size := f.size
	if size <= 0 {
		size = a.cfg.PageSize
	}
	return pagination.Params{Page: max(f.page-1, 0), Size: min(size, pagination.MaxSize), Sort: f.sort}
}

// formValues builds a submitted form from the current record (if any) with
// each key=value in sets applied on top.
func formValues(fields []form.Field, current any, sets []string) (form.Values, error) {
	if current != nil {
		m, err := form.ToMap(current)
		if err != nil {
			return nil, err
		}
		fields = form.Fill(fields, m)
	}

	known := make(map[string]bool, len(fields))
	in := url.Values{}
	for _, f := range fields {
		known[f.Name] = true
		in.Set(f.Name, f.Value)
	}
	for _, kv := range sets {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("--set %q: expected key=value", kv)
		}
		if !known[k] {
			return nil, fmt.Errorf("--set %q: unknown field %q", kv, k)
		}
		in.Set(k, v)
	}
	return form.Serialize(in), nil
}

// printRecord writes rec as label/value lines using the form layout,
// followed by any extra pairs.
func printRecord(w io.Writer, fields []form.Field, rec any, extra ...[2]string) error {
	m, err := form.ToMap(rec)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if id, ok := m["id"]; ok {
		fmt.Fprintf(tw, "ID:\t%v\n", id)
	}
	for _, f := range form.Fill(fields, m) {
		if f.Type == "hidden" {
			continue
		}
		v := f.Value
		if strings.TrimSpace(v) == "" {
			v = render.Placeholder
		}
		fmt.Fprintf(tw, "%s:\t%s\n", f.Label, v)
	}
	for _, kv := range extra {
		fmt.Fprintf(tw, "%s:\t%s\n", kv[0], kv[1])
	}
	return tw.Flush()
}

func parseArgID(arg, what string) (int64, error) {
	if !form.IsPositiveInt(arg) {
		return 0, fmt.Errorf("invalid %s id %q", what, arg)
	}
	return strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
}

// sessionRun wraps fn so it only runs with a live session.
func sessionRun(fn func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if _, err := requireSession(a); err != nil {
				return err
			}
			return fn(ctx, cmd, a, args)
		})
	}
}

func patientsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "patients", Short: "Manage patients"}

	var lf listFlags
	var name string
	list := &cobra.Command{
		Use:   "list",
		Short: "List patients",
		Args:  cobra.NoArgs,
		RunE: sessionRun(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			v := a.patients.NewView(a.cfg.PageSize)
			v.Search(name)
			v.List().Apply(lf.params(a))
			table := render.NewTextTable(cmd.OutOrStdout(), patient.CLILayout()).WithIDs(patient.Patient.RowID)
			if _, err := v.Load(ctx, table); err != nil {
				return userError(err, "Failed to load patients.")
			}
			return nil
		}),
	}
	lf.bind(list, patient.DefaultSort, []string{"name,asc", "name,desc"})
	list.Flags().StringVar(&name, "name", "", "filter by name (contains)")

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show one patient",
		Args:  cobra.ExactArgs(1),
		RunE: sessionRun(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			id, err := parseArgID(args[0], "patient")
			if err != nil {
				return err
			}
			p, err := a.patients.GetPatient(ctx, id)
			if err != nil {
				return userError(err, "Failed to load patient.")
			}
			return printRecord(cmd.OutOrStdout(), patient.Fields(), p)
		}),
	}

	var sets []string
	create := &cobra.Command{
		Use:     "create",
		Short:   "Create a patient",
		Example: "  clinsys patients create --set name='Ana Souza' --set cpf=123.456.789-01",
		Args:    cobra.NoArgs,
		RunE: sessionRun(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			v, err := formValues(patient.Fields(), nil, sets)
			if err != nil {
				return err
			}
			p := patient.FromForm(v)
			if err := a.patients.CreatePatient(ctx, p); err != nil {
				return userError(err, "Failed to save patient.")
			}
			fmt.Fprintln(cmd.OutOrStdout(), created("Patient", p.ID))
			return nil
		}),
	}
	create.Flags().StringArrayVar(&sets, "set", nil, "field value as key=value (repeatable)")

	update := &cobra.Command{
		Use:   "update ID",
		Short: "Change fields of a patient",
		Args:  cobra.ExactArgs(1),
		RunE: sessionRun(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			id, err := parseArgID(args[0], "patient")
			if err != nil {
				return err
			}
			current, err := a.patients.GetPatient(ctx, id)
			if err != nil {
				return userError(err, "Failed to load patient.")
			}
			v, err := formValues(patient.Fields(), current, sets)
			if err != nil {
				return err
			}
			p := patient.FromForm(v)
			p.ID = id
			if err := a.patients.UpdatePatient(ctx, p); err != nil {
				return userError(err, "Failed to save patient.")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Patient updated.")
			return nil
		}),
	}
	update.Flags().StringArrayVar(&sets, "set", nil, "field value as key=value (repeatable)")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a patient",
		Args:  cobra.ExactArgs(1),
		RunE: sessionRun(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			id, err := parseArgID(args[0], "patient")
			if err != nil {
				return err
			}
			if err := a.patients.DeletePatient(ctx, id); err != nil {
				return userError(err, "Failed to delete patient.")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Patient deleted.")
			return nil
		}),
	}

	cmd.AddCommand(list, get, create, update, del)
	return cmd
}

func appointmentsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "appointments", Short: "Manage appointments"}

	var lf listFlags
	var name, cpf string
	list := &cobra.Command{
		Use:   "list",
		Short: "List appointments",
		Args:  cobra.NoArgs,
		RunE: sessionRun(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			v := a.appointments.NewView(a.cfg.PageSize)
			v.Filter(ctx, name, cpf)
			v.List().Apply(lf.params(a))
			table := render.NewTextTable(cmd.OutOrStdout(), appointment.CLILayout()).WithIDs(appointment.Appointment.RowID)
			if _, err := v.Load(ctx, table); err != nil {
				return userError(err, "Failed to load appointments.")
			}
			return nil
		}),
	}
	lf.bind(list, appointment.DefaultSort, appointment.SortOptions)
	list.Flags().StringVar(&name, "patient", "", "filter by patient name (contains)")
	list.Flags().StringVar(&cpf, "cpf", "", "filter by patient CPF")

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show one appointment",
		Args:  cobra.ExactArgs(1),
		RunE: sessionRun(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			id, err := parseArgID(args[0], "appointment")
			if err != nil {
				return err
			}
			appt, err := a.appointments.GetAppointment(ctx, id)
			if err != nil {
				return userError(err, "Failed to load appointment.")
			}
			return printRecord(cmd.OutOrStdout(), appointment.Fields(), appt)
		}),
	}

	var sets []string
	create := &cobra.Command{
		Use:     "create",
		Short:   "Schedule an appointment",
		Example: "  clinsys appointments create --set date=2025-03-10 --set time=14:30 --set patientId=3 --set userId=1",
		Args:    cobra.NoArgs,
		RunE: sessionRun(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			v, err := formValues(appointment.Fields(), nil, sets)
			if err != nil {
				return err
			}
			appt, err := appointment.FromForm(v)
			if err != nil {
				return userError(err, "Invalid appointment.")
			}
			if err := a.appointments.CreateAppointment(ctx, appt); err != nil {
				return userError(err, "Failed to save appointment.")
			}
			fmt.Fprintln(cmd.OutOrStdout(), created("Appointment", appt.ID))
			return nil
		}),
	}
	create.Flags().StringArrayVar(&sets, "set", nil, "field value as key=value (repeatable)")

	update := &cobra.Command{
		Use:   "update ID",
		Short: "Change fields of an appointment",
		Args:  cobra.ExactArgs(1),
		RunE: sessionRun(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			id, err := parseArgID(args[0], "appointment")
			if err != nil {
				return err
			}
			current, err := a.appointments.GetAppointment(ctx, id)
			if err != nil {
				return userError(err, "Failed to load appointment.")
			}
			v, err := formValues(appointment.Fields(), current, sets)
			if err != nil {
				return err
			}
			appt, err := appointment.FromForm(v)
			if err != nil {
				return userError(err, "Invalid appointment.")
			}
			appt.ID = id
			if err := a.appointments.UpdateAppointment(ctx, appt); err != nil {
				return userError(err, "Failed to save appointment.")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Appointment updated.")
			return nil
		}),
	}
	update.Flags().StringArrayVar(&sets, "set", nil, "field value as key=value (repeatable)")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an appointment",
		Args:  cobra.ExactArgs(1),
		RunE: sessionRun(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			id, err := parseArgID(args[0], "appointment")
			if err != nil {
				return err
			}
			if err := a.appointments.DeleteAppointment(ctx, id); err != nil {
				return userError(err, "Failed to delete appointment.")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Appointment deleted.")
			return nil
		}),
	}

	cmd.AddCommand(list, get, create, update, del)
	return cmd
}

func evolutionsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "evolutions", Short: "Manage a patient's clinical notes"}

	var lf listFlags
	list := &cobra.Command{
		Use:   "list PATIENT_ID",
		Short: "List the notes of a patient",
		Args:  cobra.ExactArgs(1),
		RunE: sessionRun(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			patientID, err := parseArgID(args[0], "patient")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Evolutions: %s\n\n", a.evolutions.PatientLabel(ctx, patientID))
			v := a.evolutions.NewView(patientID, a.cfg.PageSize)
			v.List().Apply(lf.params(a))
			table := render.NewTextTable(out, evolution.CLILayout()).WithIDs(evolution.Evolution.RowID)
			if _, err := v.Load(ctx, table); err != nil {
				return userError(err, "Failed to load evolutions.")
			}
			return nil
		}),
	}
	lf.bind(list, evolution.DefaultSort, evolution.SortOptions)

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show one note",
		Args:  cobra.ExactArgs(1),
		RunE: sessionRun(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			id, err := parseArgID(args[0], "evolution")
			if err != nil {
				return err
			}
			e, err := a.evolutions.GetEvolution(ctx, id)
			if err != nil {
				return userError(err, "Failed to load evolution.")
			}
			return printRecord(cmd.OutOrStdout(), evolution.Fields(), e,
				[2]string{"Author", render.Text(e.AuthorName).Text},
				[2]string{"Date", render.FormatDate(e.CreatedAt)},
			)
		}),
	}

	var sets []string
	create := &cobra.Command{
		Use:     "create PATIENT_ID",
		Short:   "Add a note to a patient",
		Example: "  clinsys evolutions create 3 --set content='**BP** 12/8, stable' --set appointmentId=12",
		Args:    cobra.ExactArgs(1),
		RunE: sessionRun(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			patientID, err := parseArgID(args[0], "patient")
			if err != nil {
				return err
			}
			v, err := formValues(evolution.Fields(), nil, sets)
			if err != nil {
				return err
			}
			e, err := evolution.FromForm(v, patientID)
			if err != nil {
				return userError(err, "Invalid evolution.")
			}
			if err := a.evolutions.CreateEvolution(ctx, e); err != nil {
				return userError(err, "Failed to save evolution.")
			}
			fmt.Fprintln(cmd.OutOrStdout(), created("Evolution", e.ID))
			return nil
		}),
	}
	create.Flags().StringArrayVar(&sets, "set", nil, "field value as key=value (repeatable)")

	update := &cobra.Command{
		Use:   "update ID",
		Short: "Change a note",
		Args:  cobra.ExactArgs(1),
		RunE: sessionRun(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			id, err := parseArgID(args[0], "evolution")
			if err != nil {
				return err
			}
			current, err := a.evolutions.GetEvolution(ctx, id)
			if err != nil {
				return userError(err, "Failed to load evolution.")
			}
			v, err := formValues(evolution.Fields(), current, sets)
			if err != nil {
				return err
			}
			e, err := evolution.FromForm(v, current.PatientID)
			if err != nil {
				return userError(err, "Invalid evolution.")
			}
			e.ID = id
			if err := a.evolutions.UpdateEvolution(ctx, e); err != nil {
				return userError(err, "Failed to save evolution.")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Evolution updated.")
			return nil
		}),
	}
	update.Flags().StringArrayVar(&sets, "set", nil, "field value as key=value (repeatable)")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: sessionRun(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			id, err := parseArgID(args[0], "evolution")
			if err != nil {
				return err
			}
			if err := a.evolutions.DeleteEvolution(ctx, id); err != nil {
				return userError(err, "Failed to delete evolution.")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Evolution deleted.")
			return nil
		}),
	}

	cmd.AddCommand(list, get, create, update, del)
	return cmd
}

func created(what string, id int64) string {
	if id == 0 {
		return what + " created."
	}
	return fmt.Sprintf("%s %d created.", what, id)
}
