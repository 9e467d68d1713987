// Package dump implements the on-disk stage-dump and diff writer spec §6
// and §9 describe for the --dump flag: one YAML file per aggregation
// stage, one file per reconciled object, and a unified diff for updates.
package dump

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/illallangi/alfaoperator/internal/document"
	"github.com/illallangi/alfaoperator/internal/reconcile"
	"github.com/pmezard/go-difflib/difflib"
	"sigs.k8s.io/yaml"
)

// Writer writes every dump artifact under Dir, the directory named by
// --dump. A nil Writer (or one with an empty Dir) is a no-op, so callers
// can construct one unconditionally and skip the flag check everywhere
// else.
type Writer struct {
	Dir string
}

// Stage is one of the named aggregation-stage dump files spec §6 lists.
type Stage string

const (
	StageKinds      Stage = "kinds"
	StageObjects    Stage = "objects"
	StageDomains    Stage = "domains"
	StageNamespaces Stage = "namespaces"
	StageClusters   Stage = "clusters"
	StageRenders    Stage = "renders"
	StageTemplate   Stage = "template"
)

func (w *Writer) enabled() bool { return w != nil && w.Dir != "" }

// WriteStage dumps value as alfatemplate-<template>-<stage>.yaml.
func (w *Writer) WriteStage(template string, stage Stage, value interface{}) error {
	if !w.enabled() {
		return nil
	}
	name := fmt.Sprintf("alfatemplate-%s-%s.yaml", template, stage)
	return w.writeYAML(name, value)
}

// WriteReconciled dumps one reconciled object body as
// <namespace|"cluster">-<name>-<kind>-<resourceVersion>.yaml.
func (w *Writer) WriteReconciled(namespace, name, kind, resourceVersion string, body document.Doc) error {
	if !w.enabled() {
		return nil
	}
	ns := namespace
	if ns == "" {
		ns = "cluster"
	}
	fileName := fmt.Sprintf("%s-%s-%s-%s.yaml", ns, name, kind, resourceVersion)
	return w.writeYAML(fileName, body)
}

// WriteDiff writes a unified diff between the pre-update and post-update
// bodies of an updated object, named like WriteReconciled with a .diff
// suffix.
func (w *Writer) WriteDiff(namespace, name, kind, resourceVersion string, before, after document.Doc) error {
	if !w.enabled() {
		return nil
	}
	beforeYAML, err := yaml.Marshal(before)
	if err != nil {
		return err
	}
	afterYAML, err := yaml.Marshal(after)
	if err != nil {
		return err
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(beforeYAML)),
		B:        difflib.SplitLines(string(afterYAML)),
		FromFile: "existing",
		ToFile:   "updated",
		Context:  3,
	})
	if err != nil {
		return err
	}

	ns := namespace
	if ns == "" {
		ns = "cluster"
	}
	fileName := fmt.Sprintf("%s-%s-%s-%s.diff", ns, name, kind, resourceVersion)
	return os.WriteFile(filepath.Join(w.Dir, fileName), []byte(diff), 0o644)
}

// WriteResult dumps a reconcile.Result's applied body and, when it was an
// update that changed something, the diff against the pre-update body.
func (w *Writer) WriteResult(result reconcile.Result) error {
	if !w.enabled() {
		return nil
	}
	rv := document.GetString(result.Applied, "metadata.resourceVersion", "")
	if err := w.WriteReconciled(result.Namespace, result.Name, result.Kind, rv, result.Applied); err != nil {
		return err
	}
	if result.Outcome == reconcile.OutcomeUpdated && result.Existing != nil {
		return w.WriteDiff(result.Namespace, result.Name, result.Kind, rv, result.Existing, result.Applied)
	}
	return nil
}

func (w *Writer) writeYAML(fileName string, value interface{}) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return err
	}
	out, err := yaml.Marshal(value)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(w.Dir, fileName), out, 0o644)
}
