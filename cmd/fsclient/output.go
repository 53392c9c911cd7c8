package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"filevault-client/apiclient"
	"filevault-client/governor/domain"
	"filevault-client/governor/infra"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printFiles(w io.Writer, format string, files []apiclient.File) error {
	if format == "json" {
		if files == nil {
			files = []apiclient.File{}
		}
		return writeJSON(w, files)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tTYPE\tUPLOADED\tTAGS")
	for _, f := range files {
		uploaded := "-"
		if !f.UploadDate.IsZero() {
			uploaded = f.UploadDate.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			f.ID, f.Filename, formatBytes(f.SizeBytes), f.MimeType, uploaded, strings.Join(f.Tags, ","))
	}
	return tw.Flush()
}

func printStats(w io.Writer, format string, st *apiclient.Stats) error {
	if format == "json" {
		return writeJSON(w, st)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Used (actual)\t%s\n", formatBytes(st.DeduplicatedUsageBytes))
	fmt.Fprintf(tw, "Used (original)\t%s\n", formatBytes(st.OriginalUsageBytes))
	fmt.Fprintf(tw, "Savings\t%s (%.2f%%)\n", formatBytes(st.StorageSavingsBytes), st.StorageSavingsPercent)
	fmt.Fprintf(tw, "Files uploaded\t%d\n", st.FilesUploaded)
	fmt.Fprintf(tw, "Shares (public/private)\t%d/%d\n", st.PublicShares, st.PrivateShares)
	fmt.Fprintf(tw, "Downloads on shares\t%d\n", st.TotalDownloadsOnShares)
	return tw.Flush()
}

// printSummary escreve os contadores do governor coletados nesta execução.
func printSummary(w io.Writer, s *infra.MemoryStatsStore) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tDISPATCHED\tSUCCEEDED\tRETRIED\tFAILED")

	byKind := s.ByKind()
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		c := byKind[domain.Kind(k)]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", k, c.Dispatched, c.Succeeded, c.Retried, c.Failed)
	}
	t := s.Total()
	fmt.Fprintf(tw, "total\t%d\t%d\t%d\t%d\n", t.Dispatched, t.Succeeded, t.Retried, t.Failed)
	_ = tw.Flush()
}

// formatBytes usa base 1024 com até duas casas ("1.5 KB", "0 Bytes").
func formatBytes(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	units := []string{"Bytes", "KB", "MB", "GB", "TB"}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	if i >= len(units) {
		i = len(units) - 1
	}
	v := float64(n) / math.Pow(1024, float64(i))
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + " " + units[i]
}
