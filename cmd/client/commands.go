package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"

	"campusattend/internal/apperr"
	"campusattend/internal/auth"
	"campusattend/internal/capture"
	"campusattend/internal/client"
	"campusattend/internal/od"
)

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	user := fs.String("u", "", "username")
	pass := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := a.session.Login(ctx, *user, *pass)
	if err != nil {
		return err
	}
	fmt.Printf("signed in as %s (%s)\n", id.Username, id.Role)
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	var in client.RegisterInput
	fs.StringVar(&in.Username, "u", "", "username")
	fs.StringVar(&in.Password, "p", "", "password")
	fs.StringVar(&in.Role, "role", "student", "student or admin")
	fs.StringVar(&in.StudentID, "student-id", "", "student id")
	fs.StringVar(&in.Name, "name", "", "full name")
	fs.StringVar(&in.Department, "department", "", "department")
	fs.StringVar(&in.Year, "year", "", "year of study")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := auth.ParseRole(in.Role); err != nil {
		return apperr.Wrap(apperr.ErrValidation, err, "role must be student or admin")
	}
	id, err := a.session.Register(ctx, in)
	if err != nil {
		return err
	}
	fmt.Printf("registered and signed in as %s (%s)\n", id.Username, id.Role)
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	if err := a.session.Restore(ctx); err != nil {
		return err
	}
	id, ok := a.session.Identity()
	if !ok {
		fmt.Println("not signed in")
		return nil
	}
	fmt.Printf("%s (%s)", id.Username, id.Role)
	if id.StudentID != "" {
		fmt.Printf(" %s %s", id.StudentID, id.Name)
	}
	fmt.Printf("\nhome: %s\n", a.router.Resolve(a.session, client.PathRoot).Path)
	return nil
}

// mark runs one capture session over the image file and submits the still.
func (a *app) mark(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mark", flag.ContinueOnError)
	image := fs.String("image", "", "image file standing in for the camera")
	kiosk := fs.Bool("kiosk", false, "use the anonymous recognition endpoint")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *image == "" {
		return apperr.With(apperr.ErrValidation, "-image is required")
	}
	if !*kiosk {
		if err := a.require(ctx, "/student/mark-attendance"); err != nil {
			return err
		}
	}

	sess := capture.NewSession(capture.NewFileDevice(*image))
	defer sess.Close()

	if err := sess.Open(ctx); err != nil {
		if errors.Is(err, apperr.ErrDeviceAccess) {
			return fmt.Errorf("camera unavailable: %w", err)
		}
		return err
	}
	if sess.NotReady() {
		a.log.Warn("camera did not report ready; capturing anyway")
	}

	var res client.MarkResult
	err := sess.Capture(ctx, func(ctx context.Context, jpeg []byte) error {
		var err error
		if *kiosk {
			res, err = a.api.Recognize(ctx, jpeg)
		} else {
			res, err = a.api.MarkAttendance(ctx, jpeg)
		}
		return err
	})
	if err != nil {
		return err
	}

	switch {
	case res.Rejected():
		reason := res.Reason
		if reason == "" {
			reason = res.Message
		}
		fmt.Printf("not recognised: %s (confidence %.2f)\n", reason, res.Confidence)
	case res.AlreadyMarked:
		fmt.Printf("%s: already marked today at %s\n", res.Student.StudentID, res.Timestamp.Local().Format("15:04"))
	default:
		fmt.Printf("%s %s: %s (confidence %.2f)\n", res.Student.StudentID, res.Student.Name, res.Message, res.Confidence)
	}
	return nil
}

func (a *app) uploadOD(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload-od", flag.ContinueOnError)
	file := fs.String("file", "", "certificate or letter (pdf, jpg, png)")
	var form client.ODForm
	fs.StringVar(&form.ActivityType, "type", "", "activity type")
	fs.StringVar(&form.ActivityName, "name", "", "activity name")
	fs.StringVar(&form.EventDate, "date", "", "event date, YYYY-MM-DD")
	fs.StringVar(&form.EventVenue, "venue", "", "venue")
	fs.StringVar(&form.OrganizedBy, "org", "", "organiser")
	fs.StringVar(&form.CoordinatorName, "coordinator", "", "coordinator name")
	fs.StringVar(&form.CoordinatorContact, "contact", "", "coordinator contact")
	fs.StringVar(&form.Reason, "reason", "", "reason for OD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.require(ctx, "/student/upload-od"); err != nil {
		return err
	}
	if *file == "" {
		return apperr.With(apperr.ErrValidation, "-file is required")
	}
	info, err := os.Stat(*file)
	if err != nil {
		return err
	}
	if info.Size() > od.DefaultMaxDocumentBytes {
		return apperr.With(apperr.ErrValidation, "File too large; the limit is 10 MB")
	}
	doc, err := os.ReadFile(*file)
	if err != nil {
		return err
	}

	sub, err := a.api.UploadOD(ctx, form, filepath.Base(*file), doc)
	if err != nil {
		return err
	}
	fmt.Printf("submitted %s\n", sub.RequestID)
	if sub.Verification.IsValid {
		fmt.Printf("document verified: %s\n", sub.Verification.Message)
	} else {
		fmt.Printf("document needs manual review: %s\n", sub.Verification.Message)
	}
	return nil
}

func (a *app) review(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("review", flag.ContinueOnError)
	status := fs.String("status", "pending", "pending, approved, rejected or all")
	term := fs.String("q", "", "filter by student name, id or activity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.require(ctx, "/admin/od-requests"); err != nil {
		return err
	}
	list, err := a.api.ODRequests(ctx, *status)
	if err != nil {
		return err
	}
	printRequests(client.Filter(list, *term))
	return nil
}

func (a *app) show(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	id := fs.String("id", "", "request id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.require(ctx, "/admin/od-requests"); err != nil {
		return err
	}
	req, err := a.api.ODRequest(ctx, *id)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "id\t%s\n", req.ID)
	fmt.Fprintf(tw, "student\t%s %s\n", req.StudentID, req.StudentName)
	fmt.Fprintf(tw, "activity\t%s (%s) on %s\n", req.ActivityName, req.ActivityType, req.EventDate)
	fmt.Fprintf(tw, "reason\t%s\n", req.Reason)
	fmt.Fprintf(tw, "document\t%s\n", req.DocumentRef)
	fmt.Fprintf(tw, "verified\t%t\n", req.VerifiedByOCR)
	fmt.Fprintf(tw, "status\t%s\n", req.Status)
	if req.AdminNotes != "" {
		fmt.Fprintf(tw, "notes\t%s\n", req.AdminNotes)
	}
	_ = tw.Flush()
	if req.OCRText != "" {
		fmt.Printf("\n%s\n", req.OCRText)
	}
	return nil
}

func (a *app) decide(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	id := fs.String("id", "", "request id")
	notes := fs.String("notes", "", "note for the student")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.require(ctx, "/admin/od-requests"); err != nil {
		return err
	}
	outcome := od.OutcomeApprove
	if cmd == "reject" {
		outcome = od.OutcomeReject
	}
	req, err := a.api.Decide(ctx, *id, outcome, *notes)
	if err != nil {
		return err
	}
	fmt.Printf("%s is now %s\n", req.ID, req.Status)
	return nil
}

// watch refreshes the role's dashboard until interrupted.
func (a *app) watch(ctx context.Context) error {
	if err := a.session.Restore(ctx); err != nil {
		return err
	}
	home := a.router.Resolve(a.session, client.PathRoot)
	if home.Path == client.PathLogin {
		return apperr.With(apperr.ErrUnauthorized, "not signed in; run `client login`")
	}

	refresh := a.studentDashboard
	if auth.IsAdmin(a.session.Role()) {
		refresh = a.adminDashboard
	}
	p := client.NewPoller(client.DefaultPollInterval, func(ctx context.Context) {
		if err := refresh(ctx); err != nil && ctx.Err() == nil {
			a.log.Warn("dashboard refresh failed", zap.Error(err))
		}
	})
	p.Start(ctx)
	<-ctx.Done()
	p.Stop()
	return nil
}

func (a *app) studentDashboard(ctx context.Context) error {
	d, err := a.api.StudentDashboard(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\n%s %s  today: %s  OD pending %d approved %d rejected %d\n",
		d.StudentInfo.StudentID, d.StudentInfo.Name, d.TodayAttendance,
		d.ODStats.Pending, d.ODStats.Approved, d.ODStats.Rejected)
	for _, r := range d.RecentActivities {
		fmt.Printf("  %s  %-30s %s\n", r.EventDate, r.ActivityName, r.Status)
	}
	return nil
}

func (a *app) adminDashboard(ctx context.Context) error {
	d, err := a.api.AdminDashboard(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\nstudents %d  present today %d  pending OD %d (approved %d, rejected %d)\n",
		d.Stats.TotalStudents, d.Stats.TodayAttendance, d.Stats.PendingODRequests,
		d.ODBreakdown.Approved, d.ODBreakdown.Rejected)
	printRequests(d.RecentRequests)
	return nil
}

func printRequests(list []od.Request) {
	if len(list) == 0 {
		fmt.Println("no requests")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTUDENT\tACTIVITY\tDATE\tOCR\tSTATUS")
	for _, r := range list {
		ocr := "-"
		if r.VerifiedByOCR {
			ocr = "ok"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID), strings.TrimSpace(r.StudentID+" "+r.StudentName), r.ActivityName, r.EventDate, ocr, r.Status)
	}
	_ = tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
