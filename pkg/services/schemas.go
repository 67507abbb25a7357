package services

import "github.com/dukex/pagebot/pkg/models"

// nodeSchemas describe the stored JSON of each node content variant.
var nodeSchemas = map[models.NodeType]string{
	models.NodeTypeText: `{
		"type": "object",
		"required": ["text"],
		"properties": {"text": {"type": "string", "minLength": 1, "maxLength": 2000}}
	}`,
	models.NodeTypeMedia: `{
		"type": "object",
		"required": ["url", "media_type"],
		"properties": {
			"url": {"type": "string", "pattern": "^https?://"},
			"media_type": {"enum": ["image", "video", "audio", "file"]},
			"caption": {"type": "string"}
		}
	}`,
	models.NodeTypeQuickReply: `{
		"type": "object",
		"required": ["text", "options"],
		"properties": {
			"text": {"type": "string", "minLength": 1},
			"options": {
				"type": "array",
				"minItems": 1,
				"maxItems": 13,
				"items": {
					"type": "object",
					"required": ["title"],
					"properties": {
						"title": {"type": "string", "minLength": 1, "maxLength": 20},
						"payload": {"type": "string"},
						"next_node_id": {"type": "string"}
					}
				}
			},
			"save_to": {"type": "string"}
		}
	}`,
	models.NodeTypeCarousel: `{
		"type": "object",
		"required": ["source"],
		"properties": {
			"source": {"enum": ["manual", "product_group"]},
			"cards": {
				"type": "array",
				"maxItems": 10,
				"items": {"type": "object", "required": ["title"], "properties": {"title": {"type": "string", "minLength": 1}}}
			},
			"product_group_id": {"type": "string"},
			"limit": {"type": "integer", "minimum": 0, "maximum": 10}
		},
		"oneOf": [
			{"properties": {"source": {"const": "manual"}}, "required": ["cards"]},
			{"properties": {"source": {"const": "product_group"}, "product_group_id": {"minLength": 1}}, "required": ["product_group_id"]}
		]
	}`,
	models.NodeTypeForm: `{
		"type": "object",
		"required": ["fields"],
		"properties": {
			"fields": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["key", "prompt"],
					"properties": {
						"key": {"type": "string", "minLength": 1},
						"prompt": {"type": "string", "minLength": 1},
						"required": {"type": "boolean"},
						"type": {"enum": ["text", "number", "email", "phone"]},
						"pattern": {"type": "string"},
						"error_message": {"type": "string"}
					}
				}
			},
			"save_to": {"type": "string"},
			"max_retries": {"type": "integer", "minimum": 0, "maximum": 10},
			"skip_keyword": {"type": "string"}
		}
	}`,
	models.NodeTypeAction: `{
		"type": "object",
		"required": ["actions"],
		"properties": {
			"actions": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["type"],
					"properties": {"type": {"enum": ["add_tag", "set_variable", "call_webhook", "transfer_to_agent"]}}
				}
			}
		}
	}`,
	models.NodeTypeAIReply: `{
		"type": "object",
		"properties": {
			"use_default": {"type": "boolean"},
			"model": {"type": "string"},
			"system_prompt": {"type": "string"},
			"temperature": {"type": "number", "minimum": 0, "maximum": 2},
			"max_tokens": {"type": "integer", "minimum": 0},
			"max_history_messages": {"type": "integer", "minimum": 0, "maximum": 50}
		}
	}`,
	models.NodeTypeWait: `{
		"type": "object",
		"required": ["seconds"],
		"properties": {"seconds": {"type": "integer", "minimum": 1, "maximum": 2592000}}
	}`,
	models.NodeTypeChildScript: `{
		"type": "object",
		"required": ["scenario_id"],
		"properties": {
			"scenario_id": {"type": "string", "minLength": 1},
			"node_id": {"type": "string"}
		}
	}`,
}
