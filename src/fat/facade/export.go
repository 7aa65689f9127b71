package facade

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fatorch/src/fat/model"
	"fatorch/src/platform/ferr"
	"fatorch/src/util"

	optional "github.com/moznion/go-optional"
	"github.com/samber/oops"
)

const (
	defaultAllocationExportName = "channel_allocation.csv"
	defaultResultsExportName    = "test_results.csv"
)

// ExportChannelAllocation writes one row per allocation across every batch:
// batch id and name, definition id and tag, test channel id and its
// communication address.
// targetPath may be empty, in which case a timestamped file is created
// under the process working directory.
func (f *Facade) ExportChannelAllocation(ctx context.Context, targetPath string) (string, error) {
	errorb := oops.In(util.GetFunctionName())

	batches, err := f.store.ListBatches(ctx)
	if err != nil {
		return "", errorb.Wrap(err)
	}

	path := resolveExportPath(targetPath, defaultAllocationExportName)
	file, err := os.Create(path)
	if err != nil {
		return "", errorb.Code(ferr.PersistenceUnavailable).Wrapf(err, "can't create export file '%s'", path)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"batch_id", "batch_name", "definition_id", "definition_tag", "test_channel_id", "test_comm_address"}); err != nil {
		return "", errorb.Wrap(err)
	}

	for _, batch := range batches {
		allocations, err := f.store.ListBatchAllocations(ctx, batch.BatchID)
		if err != nil {
			return "", errorb.Wrap(err)
		}
		for _, alloc := range allocations {
			def, err := f.store.GetDefinition(ctx, alloc.DefinitionID)
			if err != nil {
				return "", errorb.Wrap(err)
			}
			row := []string{batch.BatchID, batch.BatchName, alloc.DefinitionID, def.Tag, alloc.TestChannelID, alloc.TestCommAddress}
			if err := writer.Write(row); err != nil {
				return "", errorb.Wrap(err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", errorb.Wrap(err)
	}
	return path, nil
}

// ExportTestResults writes one row per instance, including every sub-test
// verdict recorded against it and any saved error notes.
func (f *Facade) ExportTestResults(ctx context.Context, targetPath string) (string, error) {
	errorb := oops.In(util.GetFunctionName())

	batches, err := f.store.ListBatches(ctx)
	if err != nil {
		return "", errorb.Wrap(err)
	}

	path := resolveExportPath(targetPath, defaultResultsExportName)
	file, err := os.Create(path)
	if err != nil {
		return "", errorb.Code(ferr.PersistenceUnavailable).Wrapf(err, "can't create export file '%s'", path)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"batch_id", "instance_id", "definition_id", "overall_status",
		"retries_count", "error_message", "error_notes", "sub_test_items",
	}
	if err := writer.Write(header); err != nil {
		return "", errorb.Wrap(err)
	}

	for _, batch := range batches {
		instances, err := f.store.ListBatchInstances(ctx, batch.BatchID)
		if err != nil {
			return "", errorb.Wrap(err)
		}
		for _, inst := range instances {
			if err := writer.Write(instanceExportRow(batch.BatchID, inst)); err != nil {
				return "", errorb.Wrap(err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", errorb.Wrap(err)
	}
	return path, nil
}

func instanceExportRow(batchID string, inst model.ChannelTestInstance) []string {
	return []string{
		batchID,
		inst.InstanceID,
		inst.DefinitionID,
		string(inst.OverallStatus),
		fmt.Sprintf("%d", inst.RetriesCount),
		optionString(inst.ErrorMessage),
		formatErrorNotes(inst.ErrorNotes),
		formatSubTestResults(inst.SubTestResults),
	}
}

func formatErrorNotes(notes model.ErrorNotes) string {
	parts := []string{
		"integration=" + optionString(notes.Integration),
		"plc_programming=" + optionString(notes.PlcProgramming),
		"hmi_configuration=" + optionString(notes.HmiConfiguration),
	}
	line := ""
	for i, part := range parts {
		if i > 0 {
			line += "; "
		}
		line += part
	}
	return line
}

func optionString(o optional.Option[string]) string {
	if v, ok := o.Take(); ok {
		return v
	}
	return ""
}

func formatSubTestResults(results map[string]model.SubTestResult) string {
	if len(results) == 0 {
		return ""
	}
	line := ""
	for key, result := range results {
		if line != "" {
			line += "; "
		}
		line += fmt.Sprintf("%s=%s", key, result.Status)
	}
	return line
}

func resolveExportPath(targetPath, defaultName string) string {
	if targetPath != "" {
		return targetPath
	}
	stamp := time.Now().UTC().Format("20060102T150405Z")
	return filepath.Join(".", stamp+"_"+defaultName)
}
