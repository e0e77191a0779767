package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/outreach/internal/segment"
	"github.com/foxzi/outreach/internal/tokentext"
	"github.com/foxzi/outreach/internal/web/models"
	"github.com/foxzi/outreach/internal/web/repository"
)

var (
	previewName    string
	previewGender  string
	previewAge     int
	previewJob     string
	previewCompany string
)

var segmentCmd = &cobra.Command{
	Use:   "segment",
	Short: "Target segment commands",
}

var segmentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List segments in priority order",
	RunE:  runSegmentList,
}

var segmentPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show which segment an applicant matches and the rendered messages",
	RunE:  runSegmentPreview,
}

func init() {
	segmentCmd.PersistentFlags().StringVar(&accountID, "uid", "", "Account uid")

	segmentPreviewCmd.Flags().StringVar(&previewName, "name", "", "Applicant name")
	segmentPreviewCmd.Flags().StringVar(&previewGender, "gender", "", "Applicant gender (male, female, 男性, 女性)")
	segmentPreviewCmd.Flags().IntVar(&previewAge, "age", 0, "Applicant age (0 when unknown)")
	segmentPreviewCmd.Flags().StringVar(&previewJob, "job-title", "", "Job title for the message")
	segmentPreviewCmd.Flags().StringVar(&previewCompany, "company", "", "Company name for the message")
	segmentPreviewCmd.MarkFlagRequired("name")

	segmentCmd.AddCommand(segmentListCmd, segmentPreviewCmd)
	rootCmd.AddCommand(segmentCmd)
}

func listSegments(ctx context.Context) ([]models.Segment, error) {
	_, store, err := openStore()
	if err != nil {
		return nil, err
	}
	defer store.Close()

	segs, err := repository.NewSegmentRepository(store).List(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	segment.Sort(segs)
	return segs, nil
}

func runSegmentList(cmd *cobra.Command, args []string) error {
	segs, err := listSegments(context.Background())
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		fmt.Println("No segments")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRIORITY\tID\tTITLE\tENABLED\tSMS\tMAIL")
	for _, s := range segs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%v\t%s\t%s\n",
			s.Priority, s.ID, s.Title, s.Enabled,
			channelSummary(s.Actions.SMS.Enabled, s.Actions.SMS.SendMode),
			channelSummary(s.Actions.Mail.Enabled, s.Actions.Mail.SendMode))
	}
	return w.Flush()
}

func channelSummary(enabled bool, mode string) string {
	if !enabled {
		return "-"
	}
	return mode
}

func runSegmentPreview(cmd *cobra.Command, args []string) error {
	segs, err := listSegments(context.Background())
	if err != nil {
		return err
	}

	applicant := segment.Applicant{
		Name:   previewName,
		Gender: segment.NormalizeGender(previewGender),
		Age:    previewAge,
	}
	seg, ok := segment.Select(segs, applicant)
	if !ok {
		fmt.Println("No segment matches")
		return nil
	}

	values := map[string]string{
		"applicant_name": previewName,
		"job_title":      previewJob,
		"company":        previewCompany,
	}

	fmt.Printf("Segment: %s (%s)\n", seg.Title, seg.ID)
	if seg.Actions.SMS.Enabled {
		fmt.Printf("\n[SMS] %s\n%s\n", seg.Actions.SMS.SendMode, tokentext.Render(seg.Actions.SMS.Text, values))
	}
	if seg.Actions.Mail.Enabled {
		fmt.Printf("\n[Mail] %s\nSubject: %s\n\n%s\n", seg.Actions.Mail.SendMode,
			tokentext.Render(seg.Actions.Mail.Subject, values),
			tokentext.Render(seg.Actions.Mail.Body, values))
	}
	return nil
}
