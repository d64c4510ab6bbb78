package backend

import (
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/rulegraph/internal/compiler"
	"github.com/roach88/rulegraph/internal/ir"
	"github.com/roach88/rulegraph/internal/store"
)

// operatorAttrs are the attributes every operator element may carry.
type operatorAttrs struct {
	ID        string `validate:"required,identifier"`
	Impl      string `validate:"required"`
	Required  string `validate:"omitempty,oneof=true false"`
	Threshold string `validate:"omitempty,numeric"`
	Weight    string `validate:"omitempty,positive"`
}

// implAttr names the implementation attribute of each operator element.
var implAttr = map[string]string{
	"Input":          "path",
	"TransformInput": "function",
	"Compare":        "metric",
	"Aggregate":      "type",
}

func newValidator() *validator.Validate {
	v := validator.New()
	mustRegister(v, "identifier", func(fl validator.FieldLevel) bool {
		return compiler.ValidIdentifier(fl.Field().String())
	})
	mustRegister(v, "positive", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Field().String())
		return err == nil && n > 0
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %q validation: %v", tag, err))
	}
}

// checker inspects a parsed rule document the way a rule backend would
// before storing it.
type checker struct {
	validate *validator.Validate
	issues   []store.Issue
	seen     map[string]bool
}

func newChecker(v *validator.Validate) *checker {
	return &checker{validate: v, seen: make(map[string]bool)}
}

// Check returns the problems of a rule document. An empty result means the
// document can be stored.
func Check(root *ir.Element) []store.Issue {
	return newChecker(newValidator()).check(root)
}

func (c *checker) check(root *ir.Element) []store.Issue {
	switch root.Name {
	case "LinkageRule":
		for _, f := range root.ChildrenNamed("Filter") {
			if limit, ok := f.Attr("limit"); ok {
				if n, err := strconv.Atoi(limit); err != nil || n <= 0 {
					c.add("", "Filter limit must be a positive integer, got '%s'.", limit)
				}
			}
		}
	case "TransformRule":
	default:
		c.add("", "Unknown rule element '%s'.", root.Name)
		return c.issues
	}

	ops := operatorChildren(root)
	if len(ops) > 1 {
		c.add("", "A rule has at most one root operator, found %d.", len(ops))
	}
	for _, op := range ops {
		c.operator(op)
	}
	return c.issues
}

func (c *checker) operator(el *ir.Element) {
	var attrs operatorAttrs
	attrs.ID, _ = el.Attr("id")
	attrs.Impl, _ = el.Attr(implAttr[el.Name])
	attrs.Required, _ = el.Attr("required")
	attrs.Threshold, _ = el.Attr("threshold")
	attrs.Weight, _ = el.Attr("weight")

	if err := c.validate.Struct(attrs); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				c.add(attrs.ID, "%s", attributeMessage(el.Name, fe))
			}
		} else {
			c.add(attrs.ID, "%v", err)
		}
	}

	if attrs.ID != "" {
		if c.seen[attrs.ID] {
			c.add(attrs.ID, "The identifier '%s' is used by more than one operator.", attrs.ID)
		}
		c.seen[attrs.ID] = true
	}

	inputs := operatorChildren(el)
	switch el.Name {
	case "Input":
		if len(inputs) > 0 {
			c.add(attrs.ID, "An input reads a path and takes no inputs.")
		}
	case "Compare":
		if len(inputs) != 2 {
			c.add(attrs.ID, "A comparison needs exactly two inputs, found %d.", len(inputs))
		}
	case "TransformInput", "Aggregate":
		if len(inputs) == 0 {
			c.add(attrs.ID, "'%s' has no inputs.", attrs.ID)
		}
	}

	for _, in := range inputs {
		c.operator(in)
	}
}

func (c *checker) add(id, format string, args ...any) {
	c.issues = append(c.issues, store.Issue{ID: id, Message: fmt.Sprintf(format, args...)})
}

func operatorChildren(el *ir.Element) []*ir.Element {
	var out []*ir.Element
	for _, child := range el.Children {
		if _, ok := implAttr[child.Name]; ok {
			out = append(out, child)
		}
	}
	return out
}

func attributeMessage(element string, fe validator.FieldError) string {
	value := fmt.Sprint(fe.Value())
	switch fe.Field() {
	case "ID":
		if fe.Tag() == "required" {
			return fmt.Sprintf("%s without an id.", element)
		}
		return fmt.Sprintf("An identifier may only contain the following characters (a - z, A - Z, 0 - 9, _, -). The following identifier is not valid: '%s'.", value)
	case "Impl":
		return fmt.Sprintf("%s needs a '%s' attribute.", element, implAttr[element])
	case "Required":
		return fmt.Sprintf("'required' must be true or false, got '%s'.", value)
	case "Threshold":
		return fmt.Sprintf("The threshold must be a number, got '%s'.", value)
	case "Weight":
		return fmt.Sprintf("The weight must be a positive integer, got '%s'.", value)
	default:
		return fmt.Sprintf("%s is invalid (%s).", fe.Field(), fe.Tag())
	}
}
