package catalog

import "sort"

// InputFormatter builds a provider payload from the uploaded image URLs and
// caller options.
type InputFormatter func(sourceURL, templateURL string, options map[string]any) map[string]any

// Model binds a public model key to a provider model id.
type Model struct {
	Key         string         `json:"key"`
	ProviderID  string         `json:"providerId"`
	FormatInput InputFormatter `json:"-"`
}

var builtinModels = []Model{
	{
		Key:        "stable-swap-v1",
		ProviderID: "codeplugtech/face-swap:278a81e7ebb22db98bcba54de985d22cc1abeead2754eb1f2af717247be69b34",
		FormatInput: func(sourceURL, templateURL string, _ map[string]any) map[string]any {
			return map[string]any{
				"target_image": templateURL,
				"swap_image":   sourceURL,
			}
		},
	},
	{
		Key:        "sepehr-mirage",
		ProviderID: "sepehr/mirage-gpu:754b60868afac702d4d84554d44bfd3daba56675af0217dc90940e570f579be1",
		FormatInput: func(sourceURL, templateURL string, options map[string]any) map[string]any {
			return merge(map[string]any{
				"source_image_file": sourceURL,
				"target_image_file": templateURL,
				"weight":            0.5,
				"det_thresh":        0.1,
			}, options)
		},
	},
	{
		Key:        "pikachu-faceswap",
		ProviderID: "pikachupichu25/image-faceswap:94b109952d4dd3cb6e9947340a6a099cc9a4821af8807a879c1f7af92e2a3b00",
		FormatInput: func(sourceURL, templateURL string, options map[string]any) map[string]any {
			return merge(map[string]any{
				"target_image":   templateURL,
				"swap_image":     sourceURL,
				"output_format":  "webp",
				"output_quality": 80,
			}, options)
		},
	},
}

// merge overlays options on base. Options win on key collisions.
func merge(base, options map[string]any) map[string]any {
	for k, v := range options {
		base[k] = v
	}
	return base
}

type Models struct {
	byKey map[string]Model
}

func DefaultModels() *Models {
	return NewModels(builtinModels)
}

func NewModels(items []Model) *Models {
	m := &Models{byKey: make(map[string]Model, len(items))}
	for _, item := range items {
		m.byKey[item.Key] = item
	}
	return m
}

func (m *Models) Find(key string) (Model, bool) {
	model, ok := m.byKey[key]
	return model, ok
}

// Keys returns the registered model keys in lexical order.
func (m *Models) Keys() []string {
	keys := make([]string, 0, len(m.byKey))
	for k := range m.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
