package config

import (
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// TransformAttributeMapToStruct uses an attribute map to transform attributes to the prescribed
// format. The target's `json` tags name the attribute keys.
func TransformAttributeMapToStruct(to interface{}, attributes AttributeMap) (interface{}, error) {
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:  "json",
		Result:   to,
		Metadata: &md,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, err
	}
	if len(md.Unused) == 0 {
		return to, nil
	}

	// set as many unused attributes as possible
	toV := reflect.ValueOf(to)
	if toV.Kind() == reflect.Ptr {
		toV = toV.Elem()
	}
	if toV.Kind() != reflect.Struct {
		return to, nil
	}
	if attrsV := toV.FieldByName("Attributes"); attrsV.IsValid() &&
		attrsV.Kind() == reflect.Map &&
		attrsV.Type().Key().Kind() == reflect.String {
		if attrsV.IsNil() {
			attrsV.Set(reflect.MakeMap(attrsV.Type()))
		}
		mapValueType := attrsV.Type().Elem()
		for _, key := range md.Unused {
			val := attributes[key]
			valV := reflect.ValueOf(val)
			if valV.IsValid() && valV.Type().AssignableTo(mapValueType) {
				attrsV.SetMapIndex(reflect.ValueOf(key), valV)
			}
		}
	}
	return to, nil
}

// An AttributeMapConverter converts an attribute map into a typed config.
type AttributeMapConverter func(attributes AttributeMap) (interface{}, error)

// ConverterFor returns an AttributeMapConverter decoding into a fresh value of the type
// pointed to by example.
func ConverterFor(example interface{}) AttributeMapConverter {
	exampleT := reflect.TypeOf(example)
	return func(attributes AttributeMap) (interface{}, error) {
		if exampleT == nil || exampleT.Kind() != reflect.Ptr {
			return nil, errors.Errorf("expected a pointer to a config struct but got %T", example)
		}
		return TransformAttributeMapToStruct(reflect.New(exampleT.Elem()).Interface(), attributes)
	}
}
