package export

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/docextract/internal/model"
)

// templateDump is the YAML backup format for the template registry.
type templateDump struct {
	Templates []*model.Template `yaml:"templates"`
}

// TemplatesYAML dumps the full template registry as YAML, counters
// included, for backup or migration between store backends.
func (e *Exporter) TemplatesYAML(ctx context.Context) ([]byte, error) {
	tpls, err := e.store.AllTemplates(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "export: list templates")
	}

	data, err := yaml.Marshal(templateDump{Templates: tpls})
	if err != nil {
		return nil, eris.Wrap(err, "export: marshal templates")
	}
	return data, nil
}

// ImportTemplatesYAML loads a YAML dump into the store. Puts follow the
// store's create-if-absent semantics, so templates whose fingerprint is
// already registered are skipped rather than overwritten. Returns the
// number of templates actually created.
func (e *Exporter) ImportTemplatesYAML(ctx context.Context, data []byte) (int, error) {
	var dump templateDump
	if err := yaml.Unmarshal(data, &dump); err != nil {
		return 0, eris.Wrap(err, "export: unmarshal templates")
	}

	created := 0
	for _, tpl := range dump.Templates {
		existing, err := e.store.FindByFingerprint(ctx, tpl.Fingerprint)
		if err != nil {
			return created, eris.Wrapf(err, "export: check fingerprint for %s", tpl.ID)
		}
		if len(existing) > 0 {
			zap.L().Debug("fingerprint already registered, skipped",
				zap.String("template_id", tpl.ID),
				zap.String("existing_id", existing[0].ID),
			)
			continue
		}
		if _, err := e.store.PutTemplate(ctx, tpl); err != nil {
			return created, eris.Wrapf(err, "export: import template %s", tpl.ID)
		}
		created++
	}
	return created, nil
}
